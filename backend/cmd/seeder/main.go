package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"schoolledger/backend/internal/gateway"
	"schoolledger/backend/internal/gateway/util"
	"schoolledger/backend/internal/shared"
)

const (
	SchoolID = "school-001"

	// User IDs
	AdminID    = "admin-001"
	TeacherID1 = "teacher-001"
	TeacherID2 = "teacher-002"
	StudentID1 = "student-001"
	StudentID2 = "student-002"
	StudentID3 = "student-003"

	CommonPassword = "password"
	AcademicYear   = "2024-25"

	// Class IDs
	Class5A = "class-5a"
	Class6A = "class-6a"
)

// ExamSeed keeps exam seeding compact
type ExamSeed struct {
	ID         string
	ClassID    string
	Name       string
	Subject    string
	TotalMarks float64
}

func main() {
	log.Println("Starting Ledger Database Seeder...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := shared.LoadServiceConfig("seeder")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client, db, err := shared.ConnectMongoDB(&cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer shared.DisconnectMongoDB(client)

	// Drop everything for a clean start
	if err := db.Drop(context.Background()); err != nil {
		log.Fatalf("Failed to drop database: %v", err)
	}
	log.Println("Database cleared successfully.")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := shared.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	// --- 1. Classes ---
	seedClasses(ctx, db)

	// --- 2. Users ---
	seedUsers(ctx, db, cfg.Security.BCryptCost)

	// --- 3. Fee structures and an opening cash payment ---
	seedFees(ctx, db)

	// --- 4. Exams ---
	seedExams(ctx, db, []ExamSeed{
		{"exam-5a-math-mid", Class5A, "Midterm", "Mathematics", 100},
		{"exam-5a-sci-mid", Class5A, "Midterm", "Science", 50},
		{"exam-6a-eng-unit1", Class6A, "Unit Test 1", "English", 25},
	})

	// --- 5. Report what was collected per class ---
	reportCollections(ctx, db)

	// --- 6. Demo tokens ---
	printTokens(cfg.Security.JWTSecret)

	log.Println("All data seeding completed successfully.")
}

// ============================================================================
// SEEDING FUNCTIONS
// ============================================================================

func seedClasses(ctx context.Context, db *mongo.Database) {
	log.Println("--- Seeding Classes ---")
	classes := []shared.Class{
		{ID: Class5A, SchoolID: SchoolID, Name: "Grade 5 - A", AcademicYear: AcademicYear, TeacherID: TeacherID1},
		{ID: Class6A, SchoolID: SchoolID, Name: "Grade 6 - A", AcademicYear: AcademicYear, TeacherID: TeacherID2},
	}
	for _, c := range classes {
		if _, err := db.Collection(shared.ColClasses).InsertOne(ctx, c); err != nil {
			log.Fatalf("Error seeding class %s: %v", c.ID, err)
		}
		log.Printf("Seeded Class: %s (%s)", c.Name, c.ID)
	}
}

func seedUsers(ctx context.Context, db *mongo.Database, cost int) {
	log.Println("--- Seeding Users ---")
	usersCol := db.Collection(shared.ColUsers)
	now := time.Now().UTC()

	users := []shared.User{
		{ID: AdminID, Name: "School Admin", Email: "admin@example.com", Role: shared.RoleAdmin},
		{ID: TeacherID1, Name: "Meera Rao", Email: "teacher@example.com", Role: shared.RoleTeacher},
		{ID: TeacherID2, Name: "Arjun Mehta", Email: "teacher2@example.com", Role: shared.RoleTeacher},
		{ID: StudentID1, Name: "Asha Kumar", Email: "student@example.com", Role: shared.RoleStudent, ClassID: Class5A, RollNumber: "01"},
		{ID: StudentID2, Name: "Bilal Khan", Email: "student2@example.com", Role: shared.RoleStudent, ClassID: Class5A, RollNumber: "02"},
		{ID: StudentID3, Name: "Chitra Iyer", Email: "student3@example.com", Role: shared.RoleStudent, ClassID: Class6A, RollNumber: "01"},
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(CommonPassword), cost)
	if err != nil {
		log.Fatalf("Error hashing password: %v", err)
	}

	for _, u := range users {
		u.SchoolID = SchoolID
		u.IsActive = true
		u.CreatedAt = now
		u.PasswordHash = string(hashedBytes)

		filter := bson.M{"email": u.Email}
		update := bson.M{"$set": u}
		if _, err := usersCol.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			log.Fatalf("Error seeding user %s: %v", u.Email, err)
		}
		log.Printf("Seeded %s: %s", u.Role, u.Email)
	}
}

func seedFees(ctx context.Context, db *mongo.Database) {
	log.Println("--- Seeding Fees ---")
	now := time.Now().UTC()
	due := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)

	structures := []shared.FeeStructure{
		{ID: "fee-5a-tuition", ClassID: Class5A, Type: "tuition", Amount: decimal.NewFromInt(1500), IsMonthly: true, Description: "Monthly tuition"},
		{ID: "fee-5a-annual", ClassID: Class5A, Type: "annual", Amount: decimal.RequireFromString("2500.50"), Description: "Annual charges"},
		{ID: "fee-6a-tuition", ClassID: Class6A, Type: "tuition", Amount: decimal.NewFromInt(1750), IsMonthly: true, Description: "Monthly tuition"},
	}
	for _, fs := range structures {
		fs.SchoolID = SchoolID
		fs.AcademicYear = AcademicYear
		fs.DueDate = due
		fs.CreatedAt = now
		if _, err := db.Collection(shared.ColFeeStructures).InsertOne(ctx, fs); err != nil {
			log.Fatalf("Error seeding fee structure %s: %v", fs.ID, err)
		}
		log.Printf("Seeded Fee Structure: %s %s", fs.ID, fs.Amount)
	}

	p := shared.FeePayment{
		ID:             shared.GenerateID("PAY"),
		SchoolID:       SchoolID,
		StudentID:      StudentID1,
		FeeStructureID: "fee-5a-annual",
		Amount:         decimal.RequireFromString("2500.50"),
		Method:         shared.MethodCash,
		Status:         shared.PaymentCompleted,
		RecordedBy:     AdminID,
		Remarks:        "Opening balance",
		PaidAt:         now,
	}
	if _, err := db.Collection(shared.ColFeePayments).InsertOne(ctx, p); err != nil {
		log.Fatalf("Error seeding payment: %v", err)
	}
	log.Printf("Seeded Payment: %s paid %s", p.StudentID, p.Amount)
}

func seedExams(ctx context.Context, db *mongo.Database, seeds []ExamSeed) {
	log.Println("--- Seeding Exams ---")
	for _, s := range seeds {
		exam := shared.Exam{
			ID:         s.ID,
			SchoolID:   SchoolID,
			ClassID:    s.ClassID,
			Name:       s.Name,
			Subject:    s.Subject,
			TotalMarks: s.TotalMarks,
			ExamDate:   time.Date(2024, time.September, 20, 0, 0, 0, 0, time.UTC),
		}
		if _, err := db.Collection(shared.ColExams).InsertOne(ctx, exam); err != nil {
			log.Fatalf("Error seeding exam %s: %v", s.ID, err)
		}
		log.Printf("Seeded Exam: %s %s (out of %v)", s.Subject, s.Name, s.TotalMarks)
	}
}

// reportCollections counts completed payments per student as a sanity check
func reportCollections(ctx context.Context, db *mongo.Database) {
	log.Println("--- Completed Payments per Student ---")

	pipeline := []bson.M{
		{"$match": bson.M{"status": shared.PaymentCompleted}},
		{"$group": bson.M{
			"_id":   "$student_id",
			"count": bson.M{"$sum": 1},
		}},
	}

	cursor, err := db.Collection(shared.ColFeePayments).Aggregate(ctx, pipeline)
	if err != nil {
		log.Fatalf("Error during payment aggregation: %v", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var result struct {
			ID    string `bson:"_id"`
			Count int32  `bson:"count"`
		}
		if err := cursor.Decode(&result); err == nil {
			log.Printf("%s: %d payment(s)", result.ID, result.Count)
		}
	}
}

func printTokens(secret string) {
	if secret == "" {
		log.Println("JWT_SECRET not set; skipping demo tokens")
		return
	}

	log.Println("--- Demo Tokens (24h) ---")
	demo := []util.Claims{
		{UserID: AdminID, Role: shared.RoleAdmin, SchoolID: SchoolID},
		{UserID: TeacherID1, Role: shared.RoleTeacher, SchoolID: SchoolID},
		{UserID: StudentID1, Role: shared.RoleStudent, SchoolID: SchoolID, ClassID: Class5A},
	}
	for _, c := range demo {
		tok, err := gateway.SignToken(secret, c, 24*time.Hour)
		if err != nil {
			log.Fatalf("Error signing token for %s: %v", c.UserID, err)
		}
		log.Printf("%s (%s): %s", c.UserID, c.Role, tok)
	}
}

// ============================================================================
// backend/internal/shared/database.go
// MongoDB connection, indexes, codecs and helper utilities
// ============================================================================

package shared

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
	MaxIdleTime    time.Duration
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig(uri, database string) *MongoConfig {
	return &MongoConfig{
		URI:            uri,
		Database:       database,
		ConnectTimeout: 20 * time.Second,
		MaxPoolSize:    50,
		MinPoolSize:    10,
		MaxIdleTime:    30 * time.Second,
	}
}

// ConnectMongoDB dials and pings MongoDB. The client carries the decimal
// codec and acknowledges writes only once a majority of the replica set has them.
func ConnectMongoDB(config *MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if config == nil {
		return nil, nil, fmt.Errorf("mongo config cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions(config))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("Connected to MongoDB (database %s)", config.Database)
	return client, client.Database(config.Database), nil
}

func clientOptions(config *MongoConfig) *options.ClientOptions {
	return options.Client().
		ApplyURI(config.URI).
		SetRegistry(NewRegistry()).
		SetWriteConcern(writeconcern.Majority()).
		SetRetryWrites(true).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetMaxConnIdleTime(config.MaxIdleTime).
		SetConnectTimeout(config.ConnectTimeout).
		SetServerSelectionTimeout(10 * time.Second)
}

// DisconnectMongoDB gracefully closes MongoDB connection
func DisconnectMongoDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	log.Println("Disconnected from MongoDB")
	return nil
}

// ============================================================================
// Indexes
// ============================================================================

// EnsureIndexes creates the unique compound indexes that back every upsert.
// marks and attendance must stay two-column unique indexes, not a synthetic key.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		ColMarks: {
			{
				Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "exam_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_student_exam"),
			},
			{Keys: bson.D{{Key: "exam_id", Value: 1}}},
		},
		ColAttendance: {
			{
				Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "date", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_student_date"),
			},
			{Keys: bson.D{{Key: "class_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		ColFeePayments: {
			{
				Keys: bson.D{{Key: "transaction_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("uniq_transaction_id").
					SetPartialFilterExpression(bson.M{"transaction_id": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "student_id", Value: 1}}},
			{Keys: bson.D{{Key: "fee_structure_id", Value: 1}}},
		},
		ColFeeStructures: {
			{Keys: bson.D{{Key: "class_id", Value: 1}, {Key: "academic_year", Value: 1}}},
		},
		ColUsers: {
			{Keys: bson.D{{Key: "class_id", Value: 1}, {Key: "role", Value: 1}}},
		},
		ColLeaves: {
			{Keys: bson.D{{Key: "applicant_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}

	for col, models := range specs {
		indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := db.Collection(col).Indexes().CreateMany(indexCtx, models)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", col, err)
		}
	}

	log.Printf("Indexes ensured on %d collections", len(specs))
	return nil
}

// IsDuplicateKey reports whether err came from a unique index violation
func IsDuplicateKey(err error) bool {
	return err != nil && (mongo.IsDuplicateKeyError(err) || errors.Is(err, ErrDuplicate))
}

// ============================================================================
// Decimal Codec
// ============================================================================

var decimalType = reflect.TypeOf(decimal.Decimal{})

// NewRegistry returns the default BSON registry extended to store
// decimal.Decimal as Decimal128.
func NewRegistry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(decimalType, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(decimalType, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	// coefficient and exponent carry over as-is, so 500.50 keeps its scale
	d := val.Interface().(decimal.Decimal)
	d128, ok := primitive.ParseDecimal128FromBigInt(d.Coefficient(), int(d.Exponent()))
	if !ok {
		return fmt.Errorf("encode decimal %s: out of Decimal128 range", d.String())
	}
	return vw.WriteDecimal128(d128)
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	var (
		d   decimal.Decimal
		err error
	)

	switch vr.Type() {
	case bsontype.Decimal128:
		var d128 primitive.Decimal128
		if d128, err = vr.ReadDecimal128(); err == nil {
			d, err = decimal.NewFromString(d128.String())
		}
	case bsontype.Double:
		var f float64
		if f, err = vr.ReadDouble(); err == nil {
			d = decimal.NewFromFloat(f)
		}
	case bsontype.Int32:
		var i int32
		if i, err = vr.ReadInt32(); err == nil {
			d = decimal.NewFromInt32(i)
		}
	case bsontype.Int64:
		var i int64
		if i, err = vr.ReadInt64(); err == nil {
			d = decimal.NewFromInt(i)
		}
	case bsontype.String:
		var s string
		if s, err = vr.ReadString(); err == nil {
			d, err = decimal.NewFromString(s)
		}
	case bsontype.Null:
		err = vr.ReadNull()
	default:
		return fmt.Errorf("cannot decode BSON %v into decimal.Decimal", vr.Type())
	}

	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(d))
	return nil
}

// ============================================================================
// Audit Logging
// ============================================================================

// Auditor records who did what. Failures are logged, never surfaced to callers.
type Auditor interface {
	Record(ctx context.Context, userID, action, resource string, details map[string]interface{})
}

// NopAuditor discards audit events
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, string, string, string, map[string]interface{}) {}

// MongoAuditor appends to the audit_logs collection
type MongoAuditor struct {
	col *mongo.Collection
}

func NewMongoAuditor(db *mongo.Database) *MongoAuditor {
	return &MongoAuditor{col: db.Collection(ColAuditLogs)}
}

func (a *MongoAuditor) Record(ctx context.Context, userID, action, resource string, details map[string]interface{}) {
	if err := LogAuditEvent(ctx, a.col, userID, action, resource, details); err != nil {
		log.Printf("Warning: Failed to log audit event %s on %s: %v", action, resource, err)
	}
}

// LogAuditEvent logs an audit event to the audit_logs collection
func LogAuditEvent(ctx context.Context, auditCol *mongo.Collection, userID, action, resource string, details map[string]interface{}) error {
	if auditCol == nil {
		return fmt.Errorf("audit collection is nil")
	}

	entry := AuditLog{
		ID:        GenerateID("AUDIT"),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Details:   details,
	}

	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := auditCol.InsertOne(insertCtx, entry)
	return err
}

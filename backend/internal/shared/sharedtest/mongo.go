// Package sharedtest connects store tests to a throwaway MongoDB database.
package sharedtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"

	"schoolledger/backend/internal/shared"
)

// Connect opens a fresh database with indexes ensured and drops it when
// the test ends. Tests are skipped when MONGO_URI is not set.
func Connect(t *testing.T) *mongo.Database {
	t.Helper()

	if err := godotenv.Load("../../cmd/server/.env"); err != nil {
		log.Println("No .env file found")
	}
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping MongoDB integration test")
	}

	name := fmt.Sprintf("ledger_test_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	cfg := shared.DefaultMongoConfig(uri, name)
	cfg.ConnectTimeout = 5 * time.Second

	client, db, err := shared.ConnectMongoDB(cfg)
	if err != nil {
		t.Skipf("MongoDB unreachable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shared.EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = shared.DisconnectMongoDB(client)
	})
	return db
}

package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// loadTestEnv loads the project .env so store-backed tests can find MONGO_URI and REDIS_ADDR.
func loadTestEnv() {
	_, filename, _, _ := runtime.Caller(0)
	// Project root is 2 levels up from this file
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		// Try current directory as fallback
		godotenv.Load()
	}
}

// TestMongoURI returns the MongoDB URI for store-backed tests, skipping the test when none is configured.
func TestMongoURI(t *testing.T) string {
	t.Helper()
	loadTestEnv()
	uri := os.Getenv("MONGO_URI_TEST")
	if uri == "" {
		uri = os.Getenv("MONGO_URI")
	}
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping MongoDB-backed test")
	}
	return uri
}

// SetupTestDB creates a test MongoDB database connection and returns the database instance.
// It also drops the named collections to ensure a clean state.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(TestMongoURI(t)))
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(dbName)
	for _, collection := range collections {
		_ = db.Collection(collection).Drop(context.Background())
	}
	return db
}

// SetupTestRedis connects to REDIS_ADDR and flushes the selected DB, skipping the test when Redis is unreachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	loadTestEnv()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis-backed test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Redis at %s unreachable: %v", addr, err)
	}
	require.NoError(t, rdb.FlushDB(context.Background()).Err(), "Failed to flush Redis")
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

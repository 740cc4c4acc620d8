package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"llm-arena/server/models"
	"llm-arena/server/store"
)

// EnvDatabaseURL names the variable pointing integration tests at a
// disposable Postgres database.
const EnvDatabaseURL = "ARENA_TEST_DATABASE_URL"

// Catalog is a small model list shared by integration tests.
var Catalog = []models.ModelInfo{
	{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini"},
	{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet"},
	{ID: "meta-llama/llama-3.3-70b-instruct:free", Name: "Llama 3.3 70B"},
}

// SetupTestDB returns a store on a freshly migrated schema. The test is
// skipped when no database is configured.
func SetupTestDB(t *testing.T) *store.DB {
	t.Helper()

	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set; skipping Postgres test", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := db.Exec(ctx, `
		DROP TABLE IF EXISTS rating_history CASCADE;
		DROP TABLE IF EXISTS battles CASCADE;
		DROP TABLE IF EXISTS models CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
	`); err != nil {
		t.Fatalf("Failed to clean database: %v", err)
	}
	if err := store.Migrate(ctx, db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// SeedCatalog seeds Catalog as global rows.
func SeedCatalog(t *testing.T, db *store.DB) {
	t.Helper()
	if _, err := db.SeedModels(context.Background(), Catalog); err != nil {
		t.Fatalf("Failed to seed models: %v", err)
	}
}

// CreateTestBattle inserts a pending battle between two catalog models.
func CreateTestBattle(t *testing.T, db *store.DB, model1, model2 string) int64 {
	t.Helper()
	id, err := db.CreateBattle(context.Background(), models.NewBattle{
		Model1:    model1,
		Model2:    model2,
		Question:  "What is the capital of France?",
		Response1: "Paris.",
		Response2: "The capital of France is Paris.",
	})
	if err != nil {
		t.Fatalf("Failed to create battle: %v", err)
	}
	return id
}

// CreateTestUser inserts a user and returns its id.
func CreateTestUser(t *testing.T, db *store.DB, id string, anonymous bool) string {
	t.Helper()
	if err := db.CreateUser(context.Background(), models.User{ID: id, IsAnonymous: anonymous}); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return id
}

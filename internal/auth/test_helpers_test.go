package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/academia-core/internal/infrastructure/database"
	_ "github.com/nerrad567/academia-core/migrations" // registers the schema
)

// testDB opens a temporary SQLite database with every migration applied.
// It is removed when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// testHasher uses the minimum bcrypt cost to keep tests fast.
func testHasher() *Hasher {
	return NewHasher(bcrypt.MinCost)
}

// seedTestUser inserts a user with password "password123".
func seedTestUser(t *testing.T, db *sql.DB, email string, role Role) *User {
	t.Helper()

	hash, err := testHasher().Hash("password123")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &User{Email: email, PasswordHash: hash, Role: role}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return user
}

package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/infrastructure/database"
	"github.com/nerrad567/academia-core/internal/storage"
	_ "github.com/nerrad567/academia-core/migrations" // registers the schema
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "course-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	_, err = db.Migrate(ctx)
	require.NoError(t, err)
	return db.DB
}

func createUser(t *testing.T, db *sql.DB, email string, role auth.Role) *auth.User {
	t.Helper()
	u := &auth.User{Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, auth.NewUserRepository(db).Create(context.Background(), u))
	return u
}

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (n *recordingNotifier) Publish(channel string, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = map[string][]Event{}
	}
	n.events[channel] = append(n.events[channel], e)
}

func (n *recordingNotifier) types(channel string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events[channel] {
		out = append(out, e.Type)
	}
	return out
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.msgs == nil {
		l.msgs = map[string][]string{}
	}
	l.msgs[level] = append(l.msgs[level], msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func (l *recordingLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs[level]...)
}

// failingDeleteStore is a DiskStore whose Delete always fails.
type failingDeleteStore struct {
	*storage.DiskStore
}

func (failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("bucket unavailable")
}

type fixture struct {
	db       *sql.DB
	repo     *SQLiteRepository
	store    *storage.DiskStore
	notifier *recordingNotifier
	svc      *Service
	lecturer *auth.User
	student  *auth.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	store, err := storage.NewDiskStore(filepath.Join(t.TempDir(), "uploads"), "/uploads", MaxSyllabusSize)
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		repo:     NewSQLiteRepository(db),
		store:    store,
		notifier: &recordingNotifier{},
		lecturer: createUser(t, db, "lecturer@example.com", auth.RoleLecturer),
		student:  createUser(t, db, "student@example.com", auth.RoleStudent),
	}
	f.svc = NewService(f.repo, store, f.notifier)
	return f
}

func pdf(name string) *Syllabus {
	body := "%PDF-1.7 " + name
	return &Syllabus{
		Name:        name,
		ContentType: "application/pdf",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func (f *fixture) createCourse(t *testing.T, title string) *Course {
	t.Helper()
	c, err := f.svc.Create(context.Background(), f.lecturer.ID,
		Input{Title: title, Credits: 3}, pdf(fmt.Sprintf("%s.pdf", title)))
	require.NoError(t, err)
	return c
}

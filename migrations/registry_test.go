package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	messaging "github.com/goliatone/go-messaging"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}
	seen := map[string]bool{}
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 %s up migrations, got %v", entry.Dialect, matches)
		}
		seen[entry.Dialect] = true
	}
	if !seen[DialectPostgres] || !seen[DialectSQLite] {
		t.Fatalf("expected postgres and sqlite filesystems, got %v", seen)
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	var label string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, sourceLabel string, _ fs.FS) error {
		calls = append(calls, dialect)
		label = sourceLabel
		return nil
	}, WithValidationTargets("sqlite3"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected single sqlite registration, got %v", calls)
	}
	if label != DefaultSourceLabel {
		t.Fatalf("expected default source label, got %q", label)
	}
}

func TestRegister_RequiresFunction(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestForDialect_AcceptsDriverNames(t *testing.T) {
	for _, driver := range []string{"postgres", "pgx", "sqlite3"} {
		fsys, err := ForDialect(driver)
		if err != nil {
			t.Fatalf("for dialect %s: %v", driver, err)
		}
		if _, err := fs.ReadFile(fsys, "00001_messaging_core_schema.up.sql"); err != nil {
			t.Fatalf("read core schema for %s: %v", driver, err)
		}
	}
	if _, err := ForDialect("mysql"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestFilesystems_AcceptsFlatSource(t *testing.T) {
	source := fstest.MapFS{
		"00001_custom.up.sql":        {Data: []byte("SELECT 1;")},
		"sqlite/00001_custom.up.sql": {Data: []byte("SELECT 1;")},
	}
	filesystems, err := Filesystems(source)
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if filesystems[0].Path != "." || filesystems[1].Path != "sqlite" {
		t.Fatalf("unexpected paths: %q %q", filesystems[0].Path, filesystems[1].Path)
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := messaging.GetMigrationsFS()
	for _, name := range []string{"00001_messaging_core_schema", "00002_messaging_throttle_state"} {
		for _, dir := range []string{"data/sql/migrations/", "data/sql/migrations/sqlite/"} {
			for _, suffix := range []string{".up.sql", ".down.sql"} {
				path := dir + name + suffix
				content, err := fs.ReadFile(root, path)
				if err != nil {
					t.Fatalf("read migration %s: %v", path, err)
				}
				if strings.TrimSpace(string(content)) == "" {
					t.Fatalf("expected migration %s to have SQL content", path)
				}
			}
		}
	}
}

func TestSQLiteCoreSchema_ApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", "file:migrations-core-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := ForDialect(DialectSQLite)
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	for _, migration := range []string{"00001_messaging_core_schema.up.sql", "00002_messaging_throttle_state.up.sql"} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply %s: %v", migration, err)
		}
	}

	insertConversation := `INSERT INTO messaging_conversations
		(id, channel, participant_a, participant_b, pair_key, subject, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertConversation, "c1", "sms", "+1", "+2", "sms|+1|+2", "", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertConversation, "c2", "sms", "+1", "+2", "sms|+1|+2", "", "2026-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected pair key unique violation")
	}
	if _, err := db.ExecContext(ctx, insertConversation, "c3", "email", "a@x", "b@x", nil, "hi", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("insert conversation without pair key: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertConversation, "c4", "email", "a@x", "b@x", nil, "hi", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("expected null pair keys to coexist: %v", err)
	}

	for _, migration := range []string{"00002_messaging_throttle_state.down.sql", "00001_messaging_core_schema.down.sql"} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply %s: %v", migration, err)
		}
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name LIKE 'messaging_%'`).Scan(&count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected messaging tables dropped, got %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}

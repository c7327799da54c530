package migration

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/browserflow/config"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://bf:pw@db:5432/browserflow?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "browserflow", "bf", "pw", "disable"))
	assert.Equal(t,
		"postgres://bf:pw@db:5432/browserflow?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "browserflow", "bf", "pw", ""))
	assert.Equal(t,
		"bf:pw@tcp(db:3306)/browserflow?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "browserflow", "bf", "pw", ""))
	assert.Equal(t,
		"file:/var/lib/bf.db?mode=rwc",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "/var/lib/bf.db", "", "", ""))
	assert.Empty(t, BuildDatabaseURL("oracle", "", 0, "", "", "", ""))
}

func TestDatabaseURLFromConfig(t *testing.T) {
	url, dt, err := DatabaseURLFromConfig(config.DefaultDatabaseConfig())
	require.NoError(t, err)
	assert.Equal(t, DatabaseTypePostgres, dt)
	assert.Equal(t, "postgres://browserflow:@localhost:5432/browserflow?sslmode=disable", url)

	_, _, err = DatabaseURLFromConfig(config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)

	_, _, err = DatabaseURLFromConfig(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestAvailableMigrations(t *testing.T) {
	for _, dt := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dt), func(t *testing.T) {
			files, err := AvailableMigrations(dt)
			require.NoError(t, err)
			require.Len(t, files, 2)
			assert.Equal(t, MigrationFile{Version: 1, Name: "create_storage_objects"}, files[0])
			assert.Equal(t, uint(2), files[1].Version)

			// 每个 up 都有对应的 down
			for _, f := range files {
				pattern := filepath.ToSlash(filepath.Join(migrationsDir(dt), "*"+f.Name+".down.sql"))
				matches, err := fs.Glob(migrationsFS, pattern)
				require.NoError(t, err)
				assert.Len(t, matches, 1, "missing down migration for %s", f.Name)
			}
		})
	}

	_, err := AvailableMigrations("oracle")
	assert.Error(t, err)
}

func TestBuildStatusAndInfo(t *testing.T) {
	files := []MigrationFile{{1, "a"}, {2, "b"}, {3, "c"}}

	statuses := buildStatus(files, 2, true)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[0].Dirty)
	assert.True(t, statuses[1].Dirty)
	assert.False(t, statuses[2].Applied)

	info := buildInfo(files, 2, false)
	assert.Equal(t, &MigrationInfo{
		CurrentVersion:    2,
		TotalMigrations:   3,
		AppliedMigrations: 2,
		PendingMigrations: 1,
	}, info)
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	assert.ErrorContains(t, err, "unsupported database type")
}

// newSQLiteMigrator 需要 cgo 版 sqlite3 驱动，不可用时跳过
func newSQLiteMigrator(t *testing.T) *DefaultMigrator {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping sqlite migration test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	m, err := NewMigrator(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  "file:" + dbPath + "?mode=rwc",
	})
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "cgo") {
		t.Skipf("sqlite3 driver unavailable: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMigrator_SQLite_Integration(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	// 重复 Up 视为无变更
	require.NoError(t, m.Up(ctx))

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), info.CurrentVersion)
	assert.Equal(t, 0, info.PendingMigrations)

	var count int
	require.NoError(t, m.db.QueryRow("SELECT COUNT(*) FROM storage_objects").Scan(&count))
	assert.Equal(t, 0, count)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.DownAll(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

// =============================================================================
// 🧪 CLI
// =============================================================================

type fakeMigrator struct {
	current uint
	dirty   bool
	files   []MigrationFile
	err     error
	calls   []string
}

func newFakeMigrator() *fakeMigrator {
	return &fakeMigrator{files: []MigrationFile{{1, "create_storage_objects"}, {2, "index_storage_objects_updated_at"}}}
}

func (f *fakeMigrator) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeMigrator) Up(context.Context) error {
	if err := f.record("up"); err != nil {
		return err
	}
	f.current = uint(len(f.files))
	return nil
}

func (f *fakeMigrator) Down(context.Context) error {
	if err := f.record("down"); err != nil {
		return err
	}
	if f.current > 0 {
		f.current--
	}
	return nil
}

func (f *fakeMigrator) DownAll(context.Context) error {
	if err := f.record("downall"); err != nil {
		return err
	}
	f.current = 0
	return nil
}

func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	if err := f.record("steps"); err != nil {
		return err
	}
	f.current = uint(int(f.current) + n)
	return nil
}

func (f *fakeMigrator) Goto(_ context.Context, v uint) error {
	if err := f.record("goto"); err != nil {
		return err
	}
	f.current = v
	return nil
}

func (f *fakeMigrator) Force(_ context.Context, v int) error {
	if err := f.record("force"); err != nil {
		return err
	}
	f.current = uint(v)
	f.dirty = false
	return nil
}

func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.current, f.dirty, f.err
}

func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) {
	return buildStatus(f.files, f.current, f.dirty), f.err
}

func (f *fakeMigrator) Info(context.Context) (*MigrationInfo, error) {
	return buildInfo(f.files, f.current, f.dirty), f.err
}

func (f *fakeMigrator) Close() error { return nil }

func runCLI(t *testing.T, m Migrator, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)
	err := cli.Run(context.Background(), args)
	return buf.String(), err
}

func TestCLI_Run(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		start       uint
		wantVersion uint
		wantOutput  string
	}{
		{name: "up", args: []string{"up"}, wantVersion: 2, wantOutput: "applied 2: version 0 -> 2"},
		{name: "up to date", args: []string{"up"}, start: 2, wantVersion: 2, wantOutput: "up to date at version 2"},
		{name: "down", args: []string{"down"}, start: 2, wantVersion: 1, wantOutput: "rolled back 1: version 2 -> 1"},
		{name: "reset", args: []string{"reset"}, start: 2, wantVersion: 0, wantOutput: "rolled back all: version 2 -> 0"},
		{name: "steps", args: []string{"steps", "1"}, wantVersion: 1, wantOutput: "applied 1: version 0 -> 1"},
		{name: "steps back", args: []string{"steps", "-1"}, start: 2, wantVersion: 1, wantOutput: "rolled back 1: version 2 -> 1"},
		{name: "goto", args: []string{"goto", "1"}, wantVersion: 1, wantOutput: "goto 1: version 0 -> 1"},
		{name: "force", args: []string{"force", "2"}, wantVersion: 2, wantOutput: "forced version 2"},
		{name: "version none", args: []string{"version"}, wantOutput: "no migrations applied"},
		{name: "version", args: []string{"version"}, start: 1, wantVersion: 1, wantOutput: "version 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMigrator()
			m.current = tt.start

			out, err := runCLI(t, m, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.wantOutput)
			assert.Equal(t, tt.wantVersion, m.current)
		})
	}
}

func TestCLI_Status(t *testing.T) {
	m := newFakeMigrator()
	m.current = 1

	out, err := runCLI(t, m, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "000001")
	assert.Contains(t, out, "create_storage_objects")
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "1/2 applied")

	m.dirty = true
	out, err = runCLI(t, m, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "dirty")
}

func TestCLI_DirtyBlocksChanges(t *testing.T) {
	m := newFakeMigrator()
	m.current, m.dirty = 2, true

	out, err := runCLI(t, m, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version 2 (dirty)")

	for _, args := range [][]string{{"up"}, {"down"}, {"steps", "1"}, {"goto", "1"}, {"reset"}} {
		_, err := runCLI(t, m, args...)
		assert.ErrorIs(t, err, ErrDirtyDatabase, args[0])
	}
	assert.Empty(t, m.calls, "nothing ran against a dirty schema")

	_, err = runCLI(t, m, "force", "1")
	require.NoError(t, err)
	assert.False(t, m.dirty)

	_, err = runCLI(t, m, "up")
	require.NoError(t, err)
	assert.Equal(t, uint(2), m.current)
}

func TestCLI_Errors(t *testing.T) {
	_, err := runCLI(t, newFakeMigrator())
	assert.ErrorIs(t, err, ErrUnknownSubcommand)

	_, err = runCLI(t, newFakeMigrator(), "sideways")
	assert.ErrorIs(t, err, ErrUnknownSubcommand)

	_, err = runCLI(t, newFakeMigrator(), "goto")
	assert.ErrorContains(t, err, "requires <version>")

	_, err = runCLI(t, newFakeMigrator(), "goto", "-3")
	assert.ErrorContains(t, err, "negative")

	_, err = runCLI(t, newFakeMigrator(), "steps", "zero")
	assert.ErrorContains(t, err, "invalid <n>")

	_, err = runCLI(t, newFakeMigrator(), "steps", "0")
	assert.ErrorContains(t, err, "zero")

	failing := newFakeMigrator()
	failing.err = errors.New("lock timeout")
	_, err = runCLI(t, failing, "force", "1")
	assert.ErrorContains(t, err, "lock timeout")
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	out := buf.String()
	for name := range subcommands {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "steps <n>")
	assert.Less(t, strings.Index(out, "down"), strings.Index(out, "up"), "sorted")
}

package app

import (
	"maps"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"

	"go.hackfix.me/tenmig/engine"
	"go.hackfix.me/tenmig/test/testdb"
)

func TestAppRollback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		args      []string
		expRows   [][]string
		expStdout []string
		expHost   []string
		expTenant []string
		expErr    string
	}{
		{
			name: "ok/default_one_step",
			args: []string{"rollback", "--targets", "host"},
			expRows: [][]string{
				{"host", "up-to-date", "3", "2", "1"},
			},
			expHost:   []string{"_migration_versions", "subscriptions", "tenants", "users"},
			expTenant: []string{"_migration_versions", "audit_log", "notes"},
		},
		{
			name: "ok/steps",
			args: []string{"rollback", "--steps", "2"},
			expRows: [][]string{
				{"host", "up-to-date", "3", "1", "2"},
				{"tenant:acme", "up-to-date", "3", "1", "2"},
			},
			expHost:   []string{"_migration_versions", "tenants", "users"},
			expTenant: []string{"_migration_versions", "notes"},
		},
		{
			name: "ok/to_zero",
			args: []string{"rollback", "--to", "0"},
			expRows: [][]string{
				{"host", "up-to-date", "3", "0", "3"},
				{"tenant:acme", "up-to-date", "3", "0", "3"},
			},
			expHost:   []string{"_migration_versions", "tenants"},
			expTenant: []string{"_migration_versions"},
		},
		{
			name: "ok/dry_run",
			args: []string{"rollback", "--to", "1", "--dry-run"},
			expRows: [][]string{
				{"host", "pending-backward", "3", "1", "2", "-"},
				{"tenant:acme", "pending-backward", "3", "1", "2", "-"},
			},
			expStdout: []string{
				"Dry run: no changes were made.",
				"host: would revert 003_create_audit_log",
				"host: would revert 002_create_subscriptions",
				"tenant:acme: would revert 002_add_note_title",
			},
			expHost:   []string{"_migration_versions", "audit_log", "subscriptions", "tenants", "users"},
			expTenant: []string{"_migration_versions", "audit_log", "notes"},
		},
		{
			name:   "err/to_and_steps",
			args:   []string{"rollback", "--to", "1", "--steps", "1"},
			expErr: "--to and --steps can't be used together",
		},
		{
			name:   "err/negative_steps",
			args:   []string{"rollback", "--steps=-1"},
			expErr: "invalid value of --steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 10*time.Second)
			defer cancel()

			app := newTestApp(tctx, t, testFiles, "acme")
			h(assert.NoError(t, app.Run("migrate")))

			err := app.Run(tt.args...)
			if tt.expErr != "" {
				h(assert.ErrorContains(t, err, tt.expErr))
				return
			}
			h(assert.NoError(t, err))

			stdout := app.stdout.String()
			for _, row := range tt.expRows {
				h(assert.Regexp(t, rowRx(row...), stdout))
			}
			for _, s := range tt.expStdout {
				h(assert.Contains(t, stdout, s))
			}

			h(assert.Equal(t, tt.expHost, testdb.Tables(t, app.host)))
			h(assert.Equal(t, tt.expTenant, testdb.Tables(t, app.tenants["acme"])))
		})
	}
}

func TestAppRollbackRoundTrip(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 10*time.Second)
	defer cancel()

	app := newTestApp(tctx, t, testFiles, "acme")
	h(assert.NoError(t, app.Run("migrate")))
	hostTables := testdb.Tables(t, app.host)
	usersCols := testdb.Columns(t, app.host, "users")
	tenantTables := testdb.Tables(t, app.tenants["acme"])

	h(assert.NoError(t, app.Run("rollback", "--to", "0")))
	h(assert.NoError(t, app.Run("migrate")))

	h(assert.Equal(t, hostTables, testdb.Tables(t, app.host)))
	h(assert.Equal(t, usersCols, testdb.Columns(t, app.host, "users")))
	h(assert.Equal(t, tenantTables, testdb.Tables(t, app.tenants["acme"])))

	h(assert.NoError(t, app.Run("status")))
	h(assert.Regexp(t, rowRx("host", "3", "3", "0", "up-to-date"), app.stdout.String()))
}

func TestAppRollbackMissingDown(t *testing.T) {
	t.Parallel()

	files := maps.Clone(testFiles)
	files["/migrations/tenant/002_add_note_title.sql"] = `-- UP --
ALTER TABLE notes ADD COLUMN title TEXT;
`
	expErr := "tenant:acme: migration 002_add_note_title can't be rolled back on tenant:acme: " +
		"/migrations/tenant/002_add_note_title.sql has no DOWN section"

	for _, dryRun := range []bool{true, false} {
		name := "real"
		if dryRun {
			name = "dry_run"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 10*time.Second)
			defer cancel()

			app := newTestApp(tctx, t, files, "acme")
			h(assert.NoError(t, app.Run("migrate", "--targets", "tenant")))

			args := []string{"rollback", "--targets", "tenant", "--to", "0"}
			if dryRun {
				args = append(args, "--dry-run")
			}
			err := app.Run(args...)

			var perr engine.PartialFailureError
			h(assert.ErrorAs(t, err, &perr))

			stdout := app.stdout.String()
			h(assert.Regexp(t, rowRx("tenant:acme", "partially-rolled-back", "3"), stdout))
			h(assert.Contains(t, stdout, expErr))
			// 003 was reverted before the missing DOWN section stopped the
			// real run.
			expTables := []string{"_migration_versions", "notes"}
			if dryRun {
				expTables = []string{"_migration_versions", "audit_log", "notes"}
			}
			h(assert.Equal(t, expTables, testdb.Tables(t, app.tenants["acme"])))
		})
	}
}

func TestAppRollbackGap(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 10*time.Second)
	defer cancel()

	files := map[string]string{
		"/migrations/host/001_create_users.sql":     testFiles["/migrations/host/001_create_users.sql"],
		"/migrations/both/003_create_audit_log.sql": testFiles["/migrations/both/003_create_audit_log.sql"],
	}
	app := newTestApp(tctx, t, files)
	h(assert.NoError(t, app.Run("migrate", "--targets", "host")))

	err := vfs.WriteFile(app.ctx.FS, "/migrations/host/002_create_subscriptions.sql",
		[]byte(testFiles["/migrations/host/002_create_subscriptions.sql"]), 0o644)
	h(assert.NoError(t, err))

	err = app.Run("rollback", "--targets", "host", "--to", "0")
	var perr engine.PartialFailureError
	h(assert.ErrorAs(t, err, &perr))

	stdout := app.stdout.String()
	h(assert.Regexp(t, rowRx("host", "conflict", "3", "3", "0"), stdout))
	h(assert.Contains(t, stdout,
		"version 2 was never applied, refusing to roll back across the gap to version 0"))
	h(assert.Equal(t, []string{"_migration_versions", "audit_log", "tenants", "users"},
		testdb.Tables(t, app.host)))
}

package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	actx "go.hackfix.me/tenmig/app/context"
	"go.hackfix.me/tenmig/db"
	"go.hackfix.me/tenmig/db/queries"
	"go.hackfix.me/tenmig/test/testdb"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// unreachableDSN is the DSN of the tenant ID "unreachable", which the test
// opener refuses to connect to.
const unreachableDSN = "file:unreachable?mode=memory"

var testFiles = map[string]string{
	"/migrations/host/001_create_users.sql": `-- Migration: create users
-- UP --
CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL);
-- DOWN --
DROP TABLE users;
`,
	"/migrations/host/002_create_subscriptions.sql": `-- UP --
CREATE TABLE subscriptions (
	id      INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users (id)
);
-- DOWN --
DROP TABLE subscriptions;
`,
	"/migrations/tenant/001_create_notes.sql": `-- UP --
CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);
-- DOWN --
DROP TABLE notes;
`,
	"/migrations/tenant/002_add_note_title.sql": `-- UP --
ALTER TABLE notes ADD COLUMN title TEXT;
-- DOWN --
ALTER TABLE notes DROP COLUMN title;
`,
	"/migrations/both/003_create_audit_log.sql": `-- UP --
CREATE TABLE audit_log (id INTEGER PRIMARY KEY, event TEXT NOT NULL);
-- DOWN --
DROP TABLE audit_log;
`,
}

type testApp struct {
	*App
	stdout, stderr *hookWriter
	env            *mockEnv
	host           *db.DB
	tenants        map[string]*db.DB
	flushOutputs   func() error
}

// newTestApp creates an app with an in-memory host database, one in-memory
// database per tenant ID registered in it, and the given migration files.
// The host DSN is passed through the DATABASE_URL environment variable.
func newTestApp(ctx context.Context, t *testing.T, files map[string]string, tenantIDs ...string) *testApp {
	t.Helper()

	host, hostDSN := testdb.Open(t, "host")
	tenants := map[string]*db.DB{}
	registry := []queries.TenantDSN{}
	for _, id := range tenantIDs {
		if id == "unreachable" {
			registry = append(registry, queries.TenantDSN{ID: id, DSN: unreachableDSN})
			continue
		}
		d, dsn := testdb.Open(t, "tenant")
		tenants[id] = d
		registry = append(registry, queries.TenantDSN{ID: id, DSN: dsn})
	}
	testdb.RegisterTenants(t, host, registry...)

	fs := memoryfs.New()
	require.NoError(t, fs.MkdirAll("/migrations", 0o755))
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(vfsDir(path), 0o755))
		require.NoError(t, vfs.WriteFile(fs, path, []byte(content), 0o644))
	}
	require.NoError(t, vfs.WriteFile(fs, "/config.json",
		[]byte(`{"migrations": {"dir": "/migrations"}, "run": {"workers": 2}}`), 0o644))

	var (
		stdinR, _        = io.Pipe()
		stdoutW, stderrW = newHookWriter(), newHookWriter()
	)

	env := &mockEnv{env: map[string]string{"DATABASE_URL": hostDSN}}
	opts := []Option{
		WithTimeSource(mockTime{}),
		WithEnv(env),
		WithDBOpener(testOpener),
		WithContext(ctx),
		WithFDs(stdinR, stdoutW, stderrW),
		WithFS(fs),
		WithLogger(false, false),
	}
	app, err := New("tenmig", "/config.json", opts...)
	require.NoError(t, err)

	tapp := &testApp{
		App: app, stdout: stdoutW, stderr: stderrW, env: env,
		host: host, tenants: tenants,
	}
	tapp.flushOutputs = func() error {
		stdoutW.Reset()
		if _, rerr := stdoutW.ReadFrom(stdoutW.tmp); rerr != nil {
			return rerr
		}
		stdoutW.tmp.Reset()

		stderrW.Reset()
		if _, rerr := stderrW.ReadFrom(stderrW.tmp); rerr != nil {
			return rerr
		}
		stderrW.tmp.Reset()

		return nil
	}

	return tapp
}

// Run runs the app with args. The outputs of the run are available even if
// it fails, since partial failures still render a report.
func (ta *testApp) Run(args ...string) error {
	err := ta.App.Run(args)
	if ferr := ta.flushOutputs(); ferr != nil {
		return ferr
	}

	return err
}

func testOpener(ctx context.Context, dsn string, opts ...db.Option) (*db.DB, error) {
	if dsn == unreachableDSN {
		return nil, errors.New("connection refused")
	}
	return db.Open(ctx, dsn, opts...)
}

func vfsDir(path string) string {
	return path[:strings.LastIndex(path, "/")]
}

// rowRx returns a regex that matches a rendered table row starting with the
// given cell values, separated by any amount of whitespace.
func rowRx(cells ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(cells))
	for _, c := range cells {
		quoted = append(quoted, regexp.QuoteMeta(c))
	}
	return regexp.MustCompile(`(?m)^\s*` + strings.Join(quoted, `\s+`) + `(\s|$)`)
}

type mockEnv struct {
	mx  sync.RWMutex
	env map[string]string
}

var _ actx.Environment = (*mockEnv)(nil)

func (me *mockEnv) Get(key string) string {
	me.mx.RLock()
	defer me.mx.RUnlock()
	return me.env[key]
}

func (me *mockEnv) Set(key, val string) error {
	me.mx.Lock()
	defer me.mx.Unlock()
	me.env[key] = val
	return nil
}

type mockTime struct{}

var _ actx.TimeSource = mockTime{}

func (mockTime) Now() time.Time {
	return timeNow
}

// hookWriter is an io.Writer that buffers each command's output separately
// from the output read by tests.
type hookWriter struct {
	*safeBuffer             // main buffer read by tests
	tmp         *safeBuffer // temp buffer written to during each command
}

func newHookWriter() *hookWriter {
	return &hookWriter{safeBuffer: newSafeBuffer(), tmp: newSafeBuffer()}
}

func (hw *hookWriter) Write(p []byte) (n int, err error) {
	return hw.tmp.Write(p)
}

// newTestContext returns a context that times out after timeout, and an
// assertion handling function that cancels the context prematurely and fails
// the test if the assertion fails. This is done to avoid waiting for the
// context timeout to be reached.
func newTestContext(t *testing.T, timeout time.Duration) (
	ctx context.Context, cancelCtx func(), assertHandler func(bool),
) {
	ctx, cancelCtx = context.WithTimeout(t.Context(), timeout)
	assertHandler = func(success bool) {
		if !success {
			cancelCtx()
			t.FailNow()
		}
	}

	return
}

// safeBuffer is a thread-safe buffer.
type safeBuffer struct {
	mx  sync.RWMutex
	buf *bytes.Buffer
}

func newSafeBuffer() *safeBuffer {
	return &safeBuffer{buf: &bytes.Buffer{}}
}

func (b *safeBuffer) Read(p []byte) (n int, err error) {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.buf.Read(p)
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) ReadFrom(r io.Reader) (n int64, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.ReadFrom(r)
}

func (b *safeBuffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.buf.Reset()
}

func (b *safeBuffer) String() string {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.buf.String()
}

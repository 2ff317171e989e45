package context

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/tenmig/app/config"
	"go.hackfix.me/tenmig/target"
)

// Context contains common objects used by the application. It is passed around
// the application to avoid direct dependencies on external systems, and make
// testing easier.
type Context struct {
	Ctx        context.Context // global context
	FS         vfs.FileSystem  // filesystem
	Env        Environment     // process environment
	Logger     *slog.Logger    // global logger
	TimeSource TimeSource
	Config     *config.Config
	// OpenDB connects to host and tenant databases.
	OpenDB target.Opener

	// Standard streams
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Metadata
	Version *VersionInfo
}

// TimeSource is the source of time information.
type TimeSource interface {
	Now() time.Time
}

// Environment is the interface to the process environment.
type Environment interface {
	Get(key string) string
	Set(key, val string) error
}

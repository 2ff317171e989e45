package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"go.hackfix.me/tenmig/app"
	actx "go.hackfix.me/tenmig/app/context"
	aerrors "go.hackfix.me/tenmig/app/errors"
)

func main() {
	a, err := app.New("tenmig", filepath.Join(xdg.ConfigHome, "tenmig", "config.json"),
		app.WithTimeSource(osTime{}),
		app.WithEnv(osEnv{}),
		app.WithFDs(
			os.Stdin,
			colorable.NewColorable(os.Stdout),
			colorable.NewColorable(os.Stderr),
		),
		app.WithFS(osfs.New()),
		app.WithLogger(
			isatty.IsTerminal(os.Stdout.Fd()),
			isatty.IsTerminal(os.Stderr.Fd()),
		),
	)
	if err != nil {
		aerrors.Log(err)
		os.Exit(1)
	}
	if err = a.Run(os.Args[1:]); err != nil {
		aerrors.Log(err)
		os.Exit(exitCode(err))
	}
}

// exitCode returns 2 if the operation failed only for some databases, and 1
// for any other error.
func exitCode(err error) int {
	var ecerr interface{ ExitCode() int }
	if errors.As(err, &ecerr) {
		return ecerr.ExitCode()
	}
	return 1
}

type osEnv struct{}

var _ actx.Environment = &osEnv{}

func (e osEnv) Get(key string) string {
	return os.Getenv(key)
}

func (e osEnv) Set(key, val string) error {
	return os.Setenv(key, val)
}

type osTime struct{}

var _ actx.TimeSource = &osTime{}

func (osTime) Now() time.Time {
	return time.Now()
}

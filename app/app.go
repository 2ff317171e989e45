package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"go.hackfix.me/tenmig/app/config"
	actx "go.hackfix.me/tenmig/app/context"
	aerrors "go.hackfix.me/tenmig/app/errors"
	"go.hackfix.me/tenmig/cli"
	"go.hackfix.me/tenmig/db"
)

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application. configFilePath is the default path of
// the configuration file, which can be overridden with the --config flag.
func New(name, configFilePath string, opts ...Option) (*App, error) {
	version, err := actx.GetVersion()
	if err != nil {
		return nil, err
	}

	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Logger:  slog.Default(),
		OpenDB:  db.Open,
		Version: version,
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version.String())
	app.cli, err = cli.New(configFilePath, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	if app.ctx.Config == nil {
		cfg := config.NewConfig(app.ctx.FS, app.cli.ConfigFile)
		if err := cfg.Load(); err != nil {
			return aerrors.NewRuntimeError("failed loading configuration", err,
				fmt.Sprintf("Fix or remove the configuration file %s.", cfg.Path()))
		}
		app.ctx.Config = cfg
	}
	app.ctx.Config.SetDefaults()
	app.cli.ApplyConfig(app.ctx.Config, app.ctx.Env)

	app.ctx.Logger.Debug("running command", "command", app.cli.Command())

	if err := app.cli.Execute(app.ctx); err != nil {
		return err
	}

	return nil
}

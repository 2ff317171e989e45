package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"go.hackfix.me/tenmig/app/config"
	actx "go.hackfix.me/tenmig/app/context"
)

// CLI is the command line interface of tenmig.
type CLI struct {
	Status   Status   `kong:"cmd,help='Show the schema version of every database.'"`
	Migrate  Migrate  `kong:"cmd,help='Apply pending migrations.'"`
	Rollback Rollback `kong:"cmd,help='Revert applied migrations.'"`
	History  History  `kong:"cmd,help='Show the version ledger of a database.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" env:"TENMIG_LOG_LEVEL" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`

	Globals `embed:""`

	Version kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// Globals are the options shared by all commands. Zero values are filled in
// from the configuration file by ApplyConfig. Only these options can be set
// with environment variables, operation flags like --to must be explicit.
type Globals struct {
	// NOTE: kong.ConfigFlag isn't used, since the configuration is managed
	// independently from the CLI.
	ConfigFile     string        `kong:"name='config',default='${configFile}',env='TENMIG_CONFIG',help='Path to the configuration file.'"`
	HostDSN        string        `kong:"name='host-dsn',env='TENMIG_HOST_DSN',help='Data source name of the host database. Falls back to the DATABASE_URL environment variable.'"`
	MigrationsDir  string        `kong:"env='TENMIG_MIGRATIONS_DIR',help='Path to the directory containing the host, tenant and both migration directories.'"`
	Workers        int           `kong:"env='TENMIG_WORKERS',help='Maximum number of databases migrated concurrently.'"`
	Timeout        time.Duration `kong:"env='TENMIG_TIMEOUT',help='Maximum duration of the whole operation.'"`
	MaxConnections int           `kong:"name='max-connections',env='TENMIG_MAX_CONNECTIONS',help='Maximum number of open connections per database.'"`
	ConnectTimeout time.Duration `kong:"env='TENMIG_CONNECT_TIMEOUT',help='Maximum time to wait for a database to respond when connecting.'"`

	tenantsQuery string
	ledgerTable  string
}

// New initializes the command-line interface.
func New(configFilePath, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("tenmig"),
		kong.Description("Schema migrations for a host database and its tenant databases."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"version":    version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx, &c.Globals)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// ApplyConfig applies configuration values to the CLI, but only if they weren't
// already set. The host DSN falls back to the DATABASE_URL environment
// variable if it's set neither on the CLI nor in the configuration.
func (c *CLI) ApplyConfig(cfg *config.Config, env actx.Environment) {
	g := &c.Globals
	if g.HostDSN == "" && cfg.Host.DSN.Valid {
		g.HostDSN = cfg.Host.DSN.V
	}
	if g.HostDSN == "" && env != nil {
		g.HostDSN = env.Get("DATABASE_URL")
	}
	if g.MigrationsDir == "" && cfg.Migrations.Dir.Valid {
		g.MigrationsDir = cfg.Migrations.Dir.V
	}
	if g.Workers <= 0 && cfg.Run.Workers.Valid {
		g.Workers = cfg.Run.Workers.V
	}
	if g.Timeout <= 0 && cfg.Run.Timeout.Valid {
		g.Timeout = cfg.Run.Timeout.V
	}
	if g.MaxConnections <= 0 && cfg.Run.MaxConnections.Valid {
		g.MaxConnections = cfg.Run.MaxConnections.V
	}
	if g.ConnectTimeout <= 0 && cfg.Run.ConnectTimeout.Valid {
		g.ConnectTimeout = cfg.Run.ConnectTimeout.V
	}
	if cfg.Tenants.Query.Valid {
		g.tenantsQuery = cfg.Tenants.Query.V
	}
	if cfg.Ledger.Table.Valid {
		g.ledgerTable = cfg.Ledger.Table.V
	}
}

// Package cmd implements the delayed command line.
//
// Applications embed it to run workers for their own handlers:
//
//	reg := job.NewRegistry(nil)
//	job.RegisterDefinition(reg, sendEmail)
//	root := cmd.NewRootCommand(cmd.WithRegistry(reg))
//	_ = root.ExecuteContext(ctx)
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/ref"
	"github.com/xraph/delayed/store"
)

// envPrefix prefixes every environment variable the command reads.
const envPrefix = "DELAYED"

// Option configures the root command.
type Option func(*app)

// WithRegistry sets the handlers the work command runs.
func WithRegistry(r *job.Registry) Option {
	return func(a *app) { a.registry = r }
}

// WithResolver sets the resolver for payload references. Jobs in the
// configured store are always resolvable.
func WithResolver(r *ref.Resolver) Option {
	return func(a *app) { a.resolver = r }
}

// app carries the state shared by the subcommands of one root command.
type app struct {
	v        *viper.Viper
	cfgFile  string
	registry *job.Registry
	resolver *ref.Resolver
	store    store.Store
}

// Execute runs the standalone root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the delayed command tree. Settings come from flags,
// DELAYED_* environment variables and an optional YAML config file, in that
// order of precedence.
func NewRootCommand(opts ...Option) *cobra.Command {
	return newApp(opts...).rootCommand()
}

func newApp(opts ...Option) *app {
	a := &app{v: viper.New()}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = job.NewRegistry(nil)
	}
	if a.resolver == nil {
		a.resolver = ref.NewResolver()
	}
	return a
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "delayed",
		Short: "Operate a delayed job store",
		Long: `delayed runs workers against a delayed job store and performs
maintenance on it.

Workers reserve due jobs one at a time. A reservation locks the job under the
worker's name; a lock older than the max run time is treated as abandoned and
the job becomes reservable again.

Configuration:
  Every flag can also be set through the environment, for example
    DELAYED_STORE        mongo, postgres, redis or memory
    DELAYED_DSN          store connection string
    DELAYED_MAX_RUN_TIME lock lifetime, e.g. 4h`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.String("store", "mongo", "store backend: mongo, postgres, redis or memory")
	pf.String("dsn", "", "store connection string")
	pf.String("database", "delayed", "database name (mongo only)")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.StringSlice("queues", nil, "only reserve jobs in these queues")
	pf.Int("min-priority", 0, "only reserve jobs with at least this priority")
	pf.Int("max-priority", 0, "only reserve jobs with at most this priority")
	pf.Duration("max-run-time", 0, "how long a lock is honoured (default 4h)")
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.newWorkCommand(),
		a.newClearLocksCommand(),
		a.newStatsCommand(),
		a.newMigrateCommand(),
	)
	return root
}

func (a *app) initConfig() error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile == "" {
		return nil
	}
	a.v.SetConfigFile(a.cfgFile)
	a.v.SetConfigType("yaml")
	return a.v.ReadInConfig()
}

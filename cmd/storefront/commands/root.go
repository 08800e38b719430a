// Package commands implements the storefront CLI.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/notify"
	"github.com/livetemplate/storefront/internal/store"
)

// Viper keys. Each is overridable by a flag where one is bound and by the
// matching STOREFRONT_* environment variable (dots and dashes become
// underscores, e.g. STOREFRONT_DATABASE_DSN).
const (
	keyDebug       = "server.debug"
	keyHost        = "server.host"
	keyPort        = "server.port"
	keyWatch       = "server.watch"
	keyOperator    = "operator"
	keyDBDriver    = "database.driver"
	keyDBDSN       = "database.dsn"
	keyDBName      = "database.database"
	keyPreviewRate = "preview.updates_per_second"
	keyAPIKey      = "api-key"
)

type app struct {
	v          *viper.Viper
	configPath string
}

// NewRootCmd builds the storefront command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("STOREFRONT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront page builder",
		Long: `Storefront serves the live storefront home page and the page builder's
preview surface and admin API. Layouts are edited as a draft and published
to live as one step.`,
		Version:       storefront.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default: storefront.yaml in the working directory)")
	pf.Bool("debug", false, "enable debug logging")
	pf.String("operator", "", "operator identity stamped on config writes (default: $USER)")
	pf.String("db-driver", "", "config store driver: sqlite, postgres, mysql, mongo or memory")
	pf.String("db-dsn", "", "config store file path, connection string or URI")
	a.bind(keyDebug, pf.Lookup("debug"))
	a.bind(keyOperator, pf.Lookup("operator"))
	a.bind(keyDBDriver, pf.Lookup("db-driver"))
	a.bind(keyDBDSN, pf.Lookup("db-dsn"))

	root.AddCommand(
		a.serveCmd(),
		a.statusCmd(),
		a.publishCmd(),
		a.discardCmd(),
		a.seedCmd(),
		a.validateCmd(),
		a.migrateNewsletterCmd(),
		a.previewPushCmd(),
		a.mcpCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

// loadConfig reads the yaml config and overlays environment and flag values
// that were explicitly set.
func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.Load(a.configPath)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	v := a.v
	if v.IsSet(keyDebug) {
		cfg.Server.Debug = v.GetBool(keyDebug)
	}
	if v.IsSet(keyHost) {
		cfg.Server.Host = v.GetString(keyHost)
	}
	if v.IsSet(keyPort) {
		cfg.Server.Port = v.GetInt(keyPort)
	}
	if v.IsSet(keyWatch) {
		cfg.Server.Watch = v.GetBool(keyWatch)
	}
	if v.IsSet(keyDBDriver) {
		cfg.Database.Driver = v.GetString(keyDBDriver)
	}
	if v.IsSet(keyDBDSN) {
		cfg.Database.DSN = v.GetString(keyDBDSN)
	}
	if v.IsSet(keyDBName) {
		cfg.Database.Database = v.GetString(keyDBName)
	}
	if v.IsSet(keyPreviewRate) {
		cfg.Preview.UpdatesPerSecond = v.GetFloat64(keyPreviewRate)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.SetDebug(cfg.Server.Debug)
	config.SetOperator(v.GetString(keyOperator))
	return cfg, nil
}

// openStore opens the configured store with publish notifications attached.
// The returned release func flushes pending notifications and closes the store.
func (a *app) openStore(ctx context.Context, cfg *config.Config) (*store.ConfigStore, func(), error) {
	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open config store: %w", err)
	}
	cs := store.New(backend, store.Options{SeedTheme: cfg.Theme, Debug: cfg.Server.Debug})
	if len(cfg.Notify) == 0 {
		return cs, func() { cs.Close() }, nil
	}

	d, err := notify.New(cfg.Title, cfg.Notify)
	if err != nil {
		cs.Close()
		return nil, nil, fmt.Errorf("invalid notify config: %w", err)
	}
	d.Attach(cs)
	return cs, func() {
		d.Wait()
		cs.Close()
	}, nil
}

// withStore runs fn against the configured store and closes it afterwards.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, cs *store.ConfigStore) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cs, release, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, cs)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "storefront version %s\n", storefront.Version)
		},
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ddbridge/internal/bigquery"
	"ddbridge/internal/config"
	"ddbridge/internal/loader"
	"ddbridge/internal/observability"
	"ddbridge/internal/provision"
	"ddbridge/internal/query"
	"ddbridge/internal/reader"
	"ddbridge/internal/snowflake"
	"ddbridge/internal/staging"
	"ddbridge/internal/ui"
	"ddbridge/internal/warehouse"
	"ddbridge/pkg/errors"
	"ddbridge/pkg/models"
)

var rootCmd = &cobra.Command{
	Use:   "ddbridge",
	Short: "Move SAP data dictionary tables into a cloud warehouse",
	Long: `ddbridge provisions warehouse tables from SAP data dictionary metadata
and loads rows into them, on BigQuery or Snowflake.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.ShowError(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.ddbridge/config.yaml)")
	flags.String("project", "", "warehouse project, or Snowflake database")
	flags.String("backend", "", "warehouse backend: bigquery or snowflake")
	flags.String("metadata-dataset", "", "dataset holding the dd03l, dd07t and dd03vt tables")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.BoolP("verbose", "v", false, "shorthand for --log-level=debug")
	bindFlags()
}

// bindFlags lets viper read the persistent flags under their config keys.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	for key, flag := range map[string]string{
		"config":                     "config",
		"warehouse.project":          "project",
		"warehouse.backend":          "backend",
		"warehouse.metadata_dataset": "metadata-dataset",
		"logging.level":              "log-level",
		"verbose":                    "verbose",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	viper.SetEnvPrefix("DDBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file and applies flag and environment
// overrides, then resolves secrets and validates the result.
func loadConfig() (*models.Config, error) {
	var (
		cfg *models.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if v := viper.GetString("warehouse.project"); v != "" {
		cfg.Warehouse.Project = v
	}
	if v := viper.GetString("warehouse.backend"); v != "" {
		cfg.Warehouse.Backend = v
	}
	if v := viper.GetString("warehouse.metadata_dataset"); v != "" {
		cfg.Warehouse.MetadataDataset = v
	}
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}

	if err := config.ResolveSecrets(cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg models.Logging) *observability.Logger {
	var enc observability.LogEncoder = observability.NewJSONEncoder(false)
	if cfg.Format == "text" {
		enc = observability.TextEncoder{}
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:   observability.LogLevelFromString(cfg.Level),
		Output:  os.Stderr,
		Service: "ddbridge",
		Version: Version,
		Encoder: enc,
	})
}

// app holds the components a command works with.
type app struct {
	cfg         *models.Config
	log         *observability.Logger
	metrics     *observability.Metrics
	wh          warehouse.Warehouse
	qb          *query.Builder
	reader      *reader.Reader
	provisioner *provision.Provisioner
	loader      *loader.Loader
}

// newApp connects to the configured warehouse. The staging provider is only
// opened when withStager is set.
func newApp(ctx context.Context, withStager bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.Logging)
	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	wh, project, err := openWarehouse(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var stager staging.Stager
	if withStager {
		if stager, err = staging.New(ctx, cfg.Staging); err != nil {
			wh.Close()
			return nil, err
		}
	}

	qb := query.NewBuilder(project, query.WithDialect(query.DialectFor(cfg.Warehouse.Backend)))
	r := reader.New(wh, qb, log)
	return &app{
		cfg:         cfg,
		log:         log,
		metrics:     metrics,
		wh:          wh,
		qb:          qb,
		reader:      r,
		provisioner: provision.New(wh, r, log, metrics),
		loader: loader.New(wh, qb, stager, loader.Options{
			NativeTruncate:   cfg.Load.NativeTruncate,
			ChunkParallelism: cfg.Load.ChunkParallelism,
		}, log, metrics),
	}, nil
}

// openWarehouse returns the backend client and the project its tables are
// addressed under.
func openWarehouse(ctx context.Context, cfg *models.Config, log *observability.Logger) (warehouse.Warehouse, string, error) {
	wc := cfg.Warehouse
	switch wc.Backend {
	case models.BackendSnowflake:
		database := wc.Snowflake.Database
		if database == "" {
			database = wc.Project
		}
		wh, err := snowflake.New(ctx, snowflake.Config{
			Account:            wc.Snowflake.Account,
			Username:           wc.Snowflake.Username,
			Password:           wc.Snowflake.Password,
			Database:           database,
			Warehouse:          wc.Snowflake.Warehouse,
			Role:               wc.Snowflake.Role,
			StorageIntegration: wc.Snowflake.StorageIntegration,
			Timeout:            time.Duration(wc.Snowflake.Timeout) * time.Second,
			LoadTimeout:        time.Duration(wc.Snowflake.LoadTimeout) * time.Second,
		}, log)
		return wh, database, err
	default:
		wh, err := bigquery.New(ctx, bigquery.Config{
			Project:         wc.Project,
			Location:        wc.Location,
			CredentialsFile: wc.CredentialsFile,
		}, log)
		return wh, wc.Project, err
	}
}

func (a *app) Close() {
	if err := a.wh.Close(); err != nil {
		a.log.WarnWithFields("failed to close warehouse client", map[string]interface{}{"error": err})
	}
}

// withApp wraps a command body that needs a connected app.
func withApp(withStager bool, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), withStager)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func splitTable(arg string) (string, string, error) {
	parts := strings.Split(arg, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.InvalidArgument("table", fmt.Sprintf("expected dataset.table, got %q", arg))
	}
	return parts[0], parts[1], nil
}

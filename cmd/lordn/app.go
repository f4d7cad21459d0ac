package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"
)

const envPrefix = "LORDN"

type app struct {
	logger pslog.Logger
	v      *viper.Viper
	open   backendOpener
}

func newApp(logger pslog.Logger, open backendOpener) *app {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &app{logger: logger, v: v, open: open}
}

func submain(ctx context.Context, args []string) int {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	logger := pslog.LoggerFromEnv(ctx,
		pslog.WithEnvPrefix(envPrefix+"_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "lordn")

	cmd := newRootCommand(newApp(logger, openBackend))
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}

		return 1
	}

	return 0
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lordn",
		Short:         "Upload queued LORDN lines to MarksDB and manage the queue",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
		Example: `
  # Upload pending claims lines of two TLDs once
  lordn upload --store mysql --dsn 'user:pass@tcp(db:3306)/lordn?parseTime=true' \
    --marksdb-url https://ry.marksdb.org --tld example --tld test --phase claims

  # Same, every 15 minutes, with settings taken from the environment
  LORDN_STORE=pebble LORDN_PEBBLE_DIR=/var/lib/lordn LORDN_TLD="example test" lordn upload --every 15m

  # Print the MySQL schema
  lordn schema --queue-table lordn_queue --task-table lordn_tasks
`,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to YAML config file")
	flags.String("store", storeMySQL, "backend: mysql, pebble or memory")
	flags.String("dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	flags.String("pebble-dir", "", "Pebble data directory")
	flags.String("queue-table", "lordn_queue", "MySQL queue table")
	flags.String("task-table", "lordn_tasks", "MySQL verify task table")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newUploadCommand(a),
		newEnqueueCommand(a),
		newStatusCommand(a),
		newClaimCommand(a),
		newCleanupCommand(a),
		newSchemaCommand(a),
	)

	return cmd
}

// configure binds the flags of the executing command, reads the config file
// and applies the log level.
func (a *app) configure(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if err := a.v.BindPFlag(flag.Name, flag); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	})
	if bindErr != nil {
		return bindErr
	}
	if path := strings.TrimSpace(a.v.GetString("config")); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %q: %w", path, err)
		}
		a.logger.Debug("loaded config file", "path", path)
	}
	if raw := strings.TrimSpace(a.v.GetString("log-level")); raw != "" {
		level, ok := pslog.ParseLevel(raw)
		if !ok {
			return fmt.Errorf("invalid log level %q", raw)
		}
		a.logger = a.logger.LogLevel(level)
	}

	return nil
}

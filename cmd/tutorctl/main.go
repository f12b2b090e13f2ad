// Command tutorctl runs administrative tasks against the tutor platform
// database outside the API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/config"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

var (
	// Global flags
	verbose  bool
	dbDriver string
	dbURL    string
	timeout  time.Duration

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tutorctl",
	Short: "Administrative tools for the Socratic tutor platform",
	Long: `tutorctl manages the tutor platform database and helps with local
development: applying the schema, signing test tokens, computing assignment
analytics and previewing how material text is chunked.

Database settings default to DATABASE_DRIVER and DATABASE_URL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if dbDriver == "" {
			dbDriver = cfg.DatabaseDriver
		}
		if dbURL == "" {
			dbURL = cfg.DatabaseURL
		}

		var err error
		if verbose {
			log, err = logger.NewDevelopment()
		} else {
			log, err = logger.New("warn")
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Creates every table and index that does not exist yet. Safe to run repeatedly.`,
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "Database driver (postgres or sqlite3)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "Database connection string")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall command timeout")

	rootCmd.AddCommand(migrateCmd, tokenCmd, analyticsCmd, chunkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

func openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, dbDriver, dbURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	log.Info("schema applied", zap.String("driver", dbDriver))
	fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

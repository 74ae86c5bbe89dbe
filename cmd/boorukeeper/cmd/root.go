package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/solatis/boorukeeper/internal/core/config"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	configFile string
	envFile    string
	dbURL      string
	logLevel   string
	logFormat  string
	backendDir string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "boorukeeper",
	Short:         "boorukeeper imageboard client and board service",
	Long:          `boorukeeper queries Danbooru, Moebooru, Gelbooru and e621 style imageboards through declarative backend documents and normalizes their responses.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
			return err
		}

		flags := cmd.Flags()
		loaded, err := config.LoadConfig(configFile,
			config.FlagBinding{Key: "database.url", Flag: flags.Lookup("db-url")},
			config.FlagBinding{Key: "log.level", Flag: flags.Lookup("log-level")},
			config.FlagBinding{Key: "log.format", Flag: flags.Lookup("log-format")},
			config.FlagBinding{Key: "backends.dir", Flag: flags.Lookup("backends-dir")},
			config.FlagBinding{Key: "server.host", Flag: flags.Lookup("host")},
			config.FlagBinding{Key: "server.port", Flag: flags.Lookup("port")},
		)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		logger = newLogger(cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with BK_ variables (ignored when the default is missing)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&backendDir, "backends-dir", "", "directory of extra backend documents")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadEnvFile loads a dotenv file without overriding variables already
// set. A missing file is only an error when the path was given explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

// newLogger builds the process logger: JSON through slog, text through
// charmbracelet/log used as an slog handler.
func newLogger(c config.LogConfig) *slog.Logger {
	if c.Format == "json" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			level = slog.LevelInfo
		}
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	level, err := log.ParseLevel(c.Level)
	if err != nil {
		level = log.InfoLevel
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "boorukeeper",
	})
	return slog.New(handler)
}

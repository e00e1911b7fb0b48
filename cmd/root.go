package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/nametags/internal/application"
	"github.com/zjrosen/nametags/internal/config"
	"github.com/zjrosen/nametags/internal/log"
)

// closeTimeout bounds how long shutdown waits for pending write-backs.
const closeTimeout = 10 * time.Second

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nametags",
	Short: "Chat name tags with interactive editing",
	Long: `nametags manages chat name tags: a styled prefix, a styled suffix and a
name color that players select and edit through a chat-driven session.

Running without a subcommand starts an interactive shell that simulates
players joining, editing tags and chatting.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runShell,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/nametags/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"log at debug level")
	rootCmd.Flags().String("backend", "", "storage backend for this run (file, sqlite, redis, postgres)")
	rootCmd.Flags().Bool("offline", false, "derive player ids from names")

	_ = viper.BindPFlag("storage.backend", rootCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("offline_mode", rootCmd.Flags().Lookup("offline"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("storage.backend", defaults.Storage.Backend)
	viper.SetDefault("offline_mode", defaults.OfflineMode)

	// NAMETAGS_STORAGE_BACKEND overrides storage.backend, and so on.
	viper.SetEnvPrefix("NAMETAGS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .nametags/config.yaml (current directory)
		// 2. ~/.config/nametags/config.yaml (user config)
		if _, err := os.Stat(".nametags/config.yaml"); err == nil {
			viper.SetConfigFile(".nametags/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "nametags"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			home, _ := os.UserHomeDir()
			defaultPath := filepath.Join(home, ".config", "nametags", "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = loadConfig()
}

// loadConfig overlays whatever viper read onto the defaults.
func loadConfig() config.Config {
	c := config.Defaults()
	if err := viper.Unmarshal(&c); err != nil {
		log.ErrorErr(log.CatConfig, "Config could not be decoded, using defaults", err)
		c = config.Defaults()
	}
	c.ExpandPaths()
	return c
}

func initLogging() (func(), error) {
	level := log.ParseLevel(cfg.Log.Level)
	if debugFlag {
		level = log.LevelDebug
	}
	if cfg.Log.File == "" {
		log.InitWithWriter(os.Stderr, max(level, log.LevelWarn))
		return func() {}, nil
	}
	cleanup, err := log.Init(cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(level)
	return cleanup, nil
}

func runShell(cmd *cobra.Command, _ []string) error {
	cleanup, err := initLogging()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := application.Open(ctx, cfg)
	if err != nil {
		return err
	}

	sh := newShell(rt, cmd.OutOrStdout())
	runErr := sh.run(ctx, cmd.InOrStdin())

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("closing: %w", err))
	}
	return runErr
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

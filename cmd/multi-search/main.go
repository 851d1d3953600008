// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the multi-search CLI: one-shot
// searches from the terminal and the HTTP server.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/multi-search/internal/config"
	"github.com/pdiddy/multi-search/internal/logger"
	"github.com/pdiddy/multi-search/internal/secrets"
	"github.com/pdiddy/multi-search/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Populated by rootCmd's PersistentPreRunE.
var (
	appConfig types.Config
	appLogger = zap.NewNop()
)

// rootCmd is the base command for the multi-search CLI.
var rootCmd = &cobra.Command{
	Use:   "multi-search",
	Short: "Search GitHub, arXiv, Semantic Scholar and the web at once",
	Long: `multi-search sends one query to several independent backends concurrently
(GitHub repositories, arXiv preprints, Semantic Scholar papers, and general
web search), then merges the answers into a single deduplicated, ranked list.

A source that fails or times out never blocks the others. Credentials are read
from the config file, MULTI_SEARCH_* environment variables, or files in
.secrets/ (github-token, semantic-scholar-api-key, serpapi-key).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(viper.GetString("log.env"), viper.GetString("log.level"))
		if err != nil {
			return err
		}
		appLogger = log

		if used := viper.ConfigFileUsed(); used != "" {
			log.Debug("using config file", zap.String("path", used))
		}

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, log)
		if err != nil {
			return err
		}
		if len(s) > 0 {
			log.Debug("loaded secrets", zap.Strings("keys", secrets.Keys(s)))
		}

		cfg, err := config.Load(viper.GetViper(), s)
		if err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = appLogger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./multi-search.yaml or ~/.config/multi-search/multi-search.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", secrets.DefaultDir, "directory of credential files")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-env", "dev", "log format: dev (console) or prod (JSON)")

	mustBind("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBind("log.env", rootCmd.PersistentFlags().Lookup("log-env"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("multi-search")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "multi-search"))
		}
	}

	if err := config.BindEnv(viper.GetViper()); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "warning: reading config:", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

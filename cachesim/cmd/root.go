// Package cmd provides the command-line interface for cachesim.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"
)

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := newRootCmd(viper.New()).Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

// newRootCmd represents the base command when called without any
// subcommands. Flags, CACHESIM_* environment variables, and the config file
// are layered into v, in that order of priority.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "cachesim",
		Short: "cachesim replays memory accesses on a simulated cache.",
		Long: `cachesim replays memory accesses on a simulated cache. ` +
			`It supports direct, fully associative, and set associative ` +
			`mappings, with random, FIFO, LFU, or LRU replacement.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}

			return loadConfig(v, configFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is ./cachesim.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text",
		"log format (text or json)")

	rootCmd.AddCommand(newRunCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func loadConfig(v *viper.Viper, configFile string) error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot load .env: %w", err)
	}

	v.SetEnvPrefix("cachesim")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cachesim")
		v.AddConfigPath(".")
	}

	err = v.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError
	if err != nil && (configFile != "" || !errors.As(err, &notFound)) {
		return fmt.Errorf("cannot read config: %w", err)
	}

	return nil
}

// Package cmd implements the vodstream CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tetsuo/vodstream/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "vodstream",
	Short: "Progressive and HLS streaming over ISO-BMFF media",
	Long: `vodstream serves progressive MP4 and HLS (fMP4) views of a media file
directly from its original container, remuxing and fragmenting samples on
request instead of pre-transcoding.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./vodstream.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig seeds viper's defaults so flag binding has something to
// override; the actual Config value each subcommand uses still goes
// through config.Load, which re-reads the config file and environment.
func initConfig() {
	config.SetDefaults(viper.GetViper())
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding
// fails, which only happens for a programmer error (an unknown flag name).
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

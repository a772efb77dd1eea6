package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd is the lurock CLI's entry point, grounded on reglet-dev-reglet's
// cobra root command wiring (the teacher's own main.go predates cobra).
var rootCmd = &cobra.Command{
	Use:   "lurock",
	Short: "A project-local package manager for the lurock registry",
	Long: `lurock installs, updates, verifies, and removes packages declared in a
project's package.yaml manifest, resolving versions against a registry and
recording the resolved graph in a checksum-bearing lockfile.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file handed to viper; core settings are always read from <project>/lurock.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(verifyCmd)
}

// initConfig lets LUROCK_-prefixed environment variables reach viper for any
// future cobra-level flag binding; internal/config does its own
// file+environment layering independently for the settings the core
// actually reads (spec §6 ConfigProvider).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("LUROCK")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// projectRoot returns the current working directory, the project root every
// subcommand operates against (spec glossary "Project root").
func projectRoot() (string, error) {
	return os.Getwd()
}

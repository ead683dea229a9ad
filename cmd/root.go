package cmd

import (
	"os"
	"time"

	"github.com/AzielCF/az-prospector/core/config"
	"github.com/AzielCF/az-prospector/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "Outbound WhatsApp lead dispatch engine",
	Long: `Dispatches prospected leads over WhatsApp under business-hours and quota limits,
tracks replies and reaps stale conversations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig()
	},
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	rootCmd.PersistentFlags().String("db-driver", "", `lead store driver --db-driver <sqlite|postgres> | example: --db-driver=postgres`)

	_ = viper.BindPFlag("app_port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("app_debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("db_driver", rootCmd.PersistentFlags().Lookup("db-driver"))
}

// initConfig builds config.Global from the environment, then applies flag overrides.
func initConfig() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if port := viper.GetString("app_port"); port != "" {
		cfg.App.Port = port
	}
	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if driver := viper.GetString("db_driver"); driver != "" {
		cfg.Database.Driver = driver
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.WithFields(logrus.Fields(config.GetAllSettings())).Debug("[CONFIG] Loaded configuration")
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

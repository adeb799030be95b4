package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/wamenu/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "wamenu",
	Short: "wamenu: WhatsApp user menu service",
	Long:  "wamenu: interactive WhatsApp menu for personnel self-service, with message deduplication, per-chat sessions and a rate-limited outbox.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	cobra.OnInitialize(loadEnvFile)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json5 or $WAMENU_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config (missing file is ignored)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(upgradeCmd())
	rootCmd.AddCommand(seedCmd())
}

// loadEnvFile fills unset environment variables from envFile. Variables
// already present in the environment win.
func loadEnvFile() {
	if envFile == "" {
		return
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envFile, err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wamenu %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("WAMENU_CONFIG"); v != "" {
		return v
	}
	return "config.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command kmud runs the kmud text server and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/crystal-mush/kmud/pkg/server"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

// rootCmd is the kmud entry point.
var rootCmd = &cobra.Command{
	Use:   "kmud",
	Short: "A line-oriented text game server",
	Long: `kmud serves players over telnet and WebSocket. Players type commands
like "register", "login" and "chargen"; each connection gets its own
interpreter with prompt dialogs and chained follow-up commands.

Configuration is layered: built-in defaults, the YAML file given with
--config, the --env-file, then KMUD_* environment variables, then flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("KMUD_CONFIG"), "path to YAML config file (env: KMUD_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
}

// loadConfig builds the configuration shared by every subcommand.
func loadConfig() (server.Config, error) {
	cfg, err := server.LoadConfig(configPath, envFile)
	if err != nil {
		return cfg, err
	}
	server.SetDebug(cfg.Debug)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Package cli provides the notifcli commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyServer  = "server"
	keyWSURL   = "ws_url"
	keyLogFile = "log_file"
	keyPrefs   = "preferences_file"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "notifcli",
	Short: "notifcli - terminal client for ERP notifications",
	Long: `notifcli keeps a live, de-duplicated view of your notifications and unread
count, reconciling REST pages with push events from the server.

It provides:
  - A live feed with 'notifcli watch'
  - Paged listing with 'notifcli list'
  - Read-state and delete commands
  - Persistent preferences (mute, sound, page size) with 'notifcli prefs'`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/notifcli/config.yaml)")
	rootCmd.PersistentFlags().String(keyServer, "http://localhost:3000/api", "Query API base URL")
	rootCmd.PersistentFlags().String("ws-url", "", "push channel URL (derived from --server when empty)")

	viper.BindPFlag(keyServer, rootCmd.PersistentFlags().Lookup(keyServer))
	viper.BindPFlag(keyWSURL, rootCmd.PersistentFlags().Lookup("ws-url"))

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(unreadCmd)
	rootCmd.AddCommand(readAllCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(deleteReadCmd)
	rootCmd.AddCommand(prefsCmd)
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "notifcli")
}

func initConfig() error {
	viper.SetEnvPrefix("NOTIFCLI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(keyLogFile, filepath.Join(configDir(), "notifcli.log"))
	viper.SetDefault(keyPrefs, filepath.Join(configDir(), "preferences.yaml"))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if _, ok := err.(*os.PathError); ok {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// pushURL derives ws(s)://host/.../ws from the REST base URL unless configured.
func pushURL() string {
	if u := viper.GetString(keyWSURL); u != "" {
		return u
	}
	base := strings.TrimRight(viper.GetString(keyServer), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/revbridge/internal/config"
	"github.com/dshills/revbridge/internal/redact"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage revbridge configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s\n", path)
			return nil
		}

		if _, err := config.Save(config.Default(), path); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file. Environment variables and flags are not written.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		cfg := config.Default()
		if _, err := os.Stat(path); err == nil {
			if cfg, err = config.ReadFile(path); err != nil {
				return err
			}
		}

		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return err
		}
		if _, err := config.Save(cfg, path); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		value := args[1]
		if args[0] == "conduit.token" {
			value = redact.Token(value, value)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], value)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfigPath, buildOverrides())
		if err != nil {
			return err
		}

		settings := cfg.Settings()
		if cfg.Conduit.Token != "" {
			settings["conduit.token"] = redact.Token(cfg.Conduit.Token, cfg.Conduit.Token)
		}
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

func configFilePath() (string, error) {
	if flagConfigPath != "" {
		return flagConfigPath, nil
	}
	return config.ConfigPath()
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configKeysCmd)
}

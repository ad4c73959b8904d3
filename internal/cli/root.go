package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aaronromeo/inboxsync/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

var rootCmd = &cobra.Command{
	Use:   "inboxsync",
	Short: "inboxsync keeps a folder index and preloads message bodies in the background",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (or set "+config.EnvConfig+")")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(foldersCmd)
}

func resolveConfigPath(cmd *cobra.Command) (string, error) {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = os.Getenv(config.EnvConfig)
	}
	if strings.TrimSpace(cfgPath) == "" {
		return "", errors.New("config path is required via --config or " + config.EnvConfig)
	}
	return cfgPath, nil
}

func loadEnvFile() error {
	if _, err := os.Stat(defaultEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(defaultEnvFile)
}

// loadConfig resolves, loads and validates the YAML config.
func loadConfig(cmd *cobra.Command) (string, config.Config, error) {
	cfgPath, err := resolveConfigPath(cmd)
	if err != nil {
		return "", config.Config{}, err
	}
	if err := loadEnvFile(); err != nil {
		return "", config.Config{}, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return "", config.Config{}, err
	}
	return cfgPath, cfg, nil
}

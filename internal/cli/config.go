package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Truthcast configuration",
	Long: `Manage Truthcast configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (TRUTHCAST_*, e.g. TRUTHCAST_STORE_DSN)
3. Config file (~/.truthcast/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the configuration after merging defaults, config file, .env, environment variables and flags. Secrets are not printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(redact(cfg))
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(yamlData))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.truthcast/config.yaml with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configPath := filepath.Join(home, ".truthcast", "config.yaml")
		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created default configuration: %s\n", configPath)
		fmt.Fprintf(cmd.OutOrStdout(), "\nTo view the effective configuration:\n  truthcast config show\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// writeDefaultConfig writes the commented default configuration, refusing to overwrite
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'truthcast config show' to view it, or delete it first to recreate", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	yamlData, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	header := `# Truthcast Configuration File
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (TRUTHCAST_*)
#   3. This config file
#   4. Built-in defaults
#
# Secrets are best kept in the environment or a .env file:
#   TRUTHCAST_STORE_DSN=postgres://...
#   OPENAI_API_KEY=sk-...          (LLM judge and transcription)
#   ANTHROPIC_API_KEY=sk-ant-...
#   NEWSAPI_KEY=...

`
	footer := `
# S3 audio references (s3://bucket/key) use the default AWS credential chain,
# or transcript.s3_access_key / transcript.s3_secret_key for MinIO-style stores.
`
	data := append([]byte(header), yamlData...)
	data = append(data, footer...)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

// redact blanks secrets before display
func redact(cfg *model.Config) *model.Config {
	out := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out.LLM.APIKey = mask(out.LLM.APIKey)
	out.Store.DSN = mask(out.Store.DSN)
	out.Providers.NewsAPI.APIKey = mask(out.Providers.NewsAPI.APIKey)
	out.Transcript.APIKey = mask(out.Transcript.APIKey)
	out.Transcript.S3AccessKey = mask(out.Transcript.S3AccessKey)
	out.Transcript.S3SecretKey = mask(out.Transcript.S3SecretKey)
	return &out
}

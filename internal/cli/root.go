package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// version is overridden at build time with -ldflags "-X ..."
var version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// secretKeys are omitted from the default YAML and need explicit env bindings
var secretKeys = []string{
	"llm.api_key",
	"llm.base_url",
	"store.dsn",
	"cache.redis_addr",
	"providers.newsapi.api_key",
	"transcript.api_key",
	"transcript.base_url",
	"transcript.s3_region",
	"transcript.s3_endpoint",
	"transcript.s3_access_key",
	"transcript.s3_secret_key",
	"transcript.audio_root",
	"http.http_proxy",
	"http.https_proxy",
	"http.no_proxy",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "truthcast",
	Short: "Truthcast - claim verification for podcasts and live audio",
	Long: `Truthcast extracts checkable factual claims from spoken-word transcripts,
gathers evidence from news, academic and government sources, and attaches
a verdict to every claim.

Verdicts are evidence summaries with a confidence score, not rulings.
Claims without enough evidence are reported as uncertain.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("truthcast %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.truthcast/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and TRUTHCAST_* environment variables
func initConfig() {
	// A missing .env is the normal case outside development
	_ = godotenv.Load()

	if err := setDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading defaults: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".truthcast"))
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	bindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// bindEnv maps TRUTHCAST_SECTION_KEY variables onto section.key
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("TRUTHCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		_ = v.BindEnv(key)
	}
}

// setDefaults registers every default so AutomaticEnv can override nested keys
func setDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	defaults := viper.New()
	defaults.SetConfigType("yaml")
	if err := defaults.ReadConfig(bytes.NewReader(data)); err != nil {
		return err
	}
	for _, key := range defaults.AllKeys() {
		v.SetDefault(key, defaults.Get(key))
	}
	return nil
}

// loadConfig resolves the effective configuration: flags, env, file, defaults
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyProviderKeys(cfg)
	if v.GetBool("verbose") && cfg.Log.Level == "info" {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyProviderKeys falls back to the vendor-standard variables for API keys
func applyProviderKeys(cfg *model.Config) {
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.LLM.BaseURL == "" && strings.ToLower(cfg.LLM.Provider) == "ollama" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Transcript.APIKey == "" {
		cfg.Transcript.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.NewsAPI.APIKey == "" {
		cfg.Providers.NewsAPI.APIKey = os.Getenv("NEWSAPI_KEY")
	}
}

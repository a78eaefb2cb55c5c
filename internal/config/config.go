package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Sheets   Sheets   `mapstructure:"sheets"`
	Journal  Journal  `mapstructure:"journal"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
}

// Sheets holds the configuration for the spreadsheet backing store.
type Sheets struct {
	SpreadsheetID     string  `mapstructure:"spreadsheet_id"`
	CredentialsFile   string  `mapstructure:"credentials_file"`
	EmptyRowThreshold int     `mapstructure:"empty_row_threshold"`
	RateLimit         float64 `mapstructure:"rate_limit"`
	RateLimitBurst    int     `mapstructure:"rate_limit_burst"`
	RetryAttempts     int     `mapstructure:"retry_attempts"`
	RetryInitialSecs  int     `mapstructure:"retry_initial_secs"`
	// StrictDedupe aborts an append when the existing-key index cannot
	// be read, instead of the default fail-open behavior that risks
	// duplicate insertion.
	StrictDedupe bool `mapstructure:"strict_dedupe"`
}

// Journal holds the configuration for the append run.
type Journal struct {
	RecordsFile string `mapstructure:"records_file"`
	DryRun      bool   `mapstructure:"dry_run"`
	Dashboard   bool   `mapstructure:"dashboard"`
}

// Database holds the configuration for the audit database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing spreadsheet ID or credentials path is fatal here; nothing
// downstream can recover from it.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("sheets.empty_row_threshold", 100)
	viper.SetDefault("sheets.rate_limit", 1) // requests per second
	viper.SetDefault("sheets.rate_limit_burst", 5)
	viper.SetDefault("sheets.retry_attempts", 3)
	viper.SetDefault("sheets.retry_initial_secs", 1)
	viper.SetDefault("database.dsn", "journal.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if config.Sheets.SpreadsheetID == "" {
		return config, errors.New("sheets.spreadsheet_id is required")
	}
	if config.Sheets.CredentialsFile == "" {
		return config, errors.New("sheets.credentials_file is required")
	}
	return
}

// Package config loads runtime settings and the advocacy topic
// definitions.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ScraperSettings tune the HTTP client.
type ScraperSettings struct {
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
}

// OCRSettings tune the recognition pool.
type OCRSettings struct {
	Languages []string `mapstructure:"languages"`
	DPI       int      `mapstructure:"dpi"`
	Workers   int      `mapstructure:"workers"`
}

// Settings is the full application configuration.
type Settings struct {
	BaseURL      string          `mapstructure:"base_url"`
	DataDir      string          `mapstructure:"data_dir"`
	CacheDir     string          `mapstructure:"cache_dir"`
	DatabasePath string          `mapstructure:"database_path"`
	TopicsPath   string          `mapstructure:"topics_path"`
	Scraper      ScraperSettings `mapstructure:"scraper"`
	OCR          OCRSettings     `mapstructure:"ocr"`
}

// LoadSettings loads settings from the optional config file and
// environment variables.
func LoadSettings(path string) (*Settings, error) {
	return LoadSettingsWithFlags(path, nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > config file > defaults.
// A missing config file is not an error; a malformed one is.
func LoadSettingsWithFlags(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("base_url", "https://lda.gop.pk")
	v.SetDefault("data_dir", "data")
	v.SetDefault("cache_dir", filepath.Join("data", "pdfs"))
	v.SetDefault("database_path", filepath.Join("data", "lda.db"))
	v.SetDefault("topics_path", "topics.yaml")
	v.SetDefault("scraper.user_agent", "lda-scraper/1.0 (civic transparency research)")
	v.SetDefault("scraper.timeout", 30*time.Second)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.delay", 2*time.Second)
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.workers", 2)

	v.SetEnvPrefix("LDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("base_url", "LDA_BASE_URL")
	_ = v.BindEnv("data_dir", "LDA_DATA_DIR")
	_ = v.BindEnv("cache_dir", "LDA_CACHE_DIR")
	_ = v.BindEnv("database_path", "LDA_DATABASE_PATH")
	_ = v.BindEnv("topics_path", "LDA_TOPICS_PATH")
	_ = v.BindEnv("scraper.user_agent", "LDA_SCRAPER_USER_AGENT")
	_ = v.BindEnv("scraper.timeout", "LDA_SCRAPER_TIMEOUT")
	_ = v.BindEnv("scraper.max_retries", "LDA_SCRAPER_MAX_RETRIES")
	_ = v.BindEnv("scraper.delay", "LDA_SCRAPER_DELAY")
	_ = v.BindEnv("ocr.languages", "LDA_OCR_LANGUAGES")
	_ = v.BindEnv("ocr.dpi", "LDA_OCR_DPI")
	_ = v.BindEnv("ocr.workers", "LDA_OCR_WORKERS")

	if flags != nil {
		_ = v.BindPFlag("base_url", flags.Lookup("base-url"))
		_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
		_ = v.BindPFlag("database_path", flags.Lookup("database"))
		_ = v.BindPFlag("topics_path", flags.Lookup("topics"))
		_ = v.BindPFlag("scraper.delay", flags.Lookup("delay"))
		_ = v.BindPFlag("ocr.languages", flags.Lookup("ocr-languages"))
		_ = v.BindPFlag("ocr.workers", flags.Lookup("ocr-workers"))
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// comma-separated env var form
	langsEnv := os.Getenv("LDA_OCR_LANGUAGES")
	if langsEnv != "" && len(settings.OCR.Languages) == 1 && strings.Contains(settings.OCR.Languages[0], ",") {
		settings.OCR.Languages = strings.Split(langsEnv, ",")
	}
	for i := range settings.OCR.Languages {
		settings.OCR.Languages[i] = strings.TrimSpace(settings.OCR.Languages[i])
	}

	return &settings, nil
}

// ValidateSettings rejects configurations the pipeline cannot run with.
func ValidateSettings(s *Settings) error {
	if s.BaseURL == "" {
		return errors.New("base_url cannot be empty")
	}
	if s.DatabasePath == "" {
		return errors.New("database_path cannot be empty")
	}
	if s.Scraper.MaxRetries < 1 {
		return errors.New("scraper.max_retries must be at least 1")
	}
	if s.Scraper.Timeout <= 0 {
		return errors.New("scraper.timeout must be positive")
	}
	if s.Scraper.Delay < 0 {
		return errors.New("scraper.delay cannot be negative")
	}
	if len(s.OCR.Languages) == 0 {
		return errors.New("ocr.languages requires at least one language")
	}
	if s.OCR.DPI < 72 {
		return errors.New("ocr.dpi must be at least 72")
	}
	if s.OCR.Workers < 1 {
		return errors.New("ocr.workers must be at least 1")
	}
	return nil
}

// EnsureDirs creates the data and cache directories.
func EnsureDirs(s *Settings) error {
	for _, dir := range []string{s.DataDir, s.CacheDir, filepath.Dir(s.DatabasePath)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

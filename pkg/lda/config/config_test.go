package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/osmkhan/lda-scraper/pkg/lda/internalerr"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings("")
	if err != nil {
		t.Fatal(err)
	}
	if s.BaseURL != "https://lda.gop.pk" {
		t.Errorf("BaseURL = %q", s.BaseURL)
	}
	if s.Scraper.MaxRetries != 3 || s.Scraper.Delay != 2*time.Second {
		t.Errorf("scraper defaults = %+v", s.Scraper)
	}
	if s.OCR.DPI != 300 || s.OCR.Workers != 2 || len(s.OCR.Languages) != 1 {
		t.Errorf("ocr defaults = %+v", s.OCR)
	}
	if err := ValidateSettings(s); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
base_url: https://example.org
scraper:
  max_retries: 5
  delay: 500ms
ocr:
  dpi: 150
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.BaseURL != "https://example.org" {
		t.Errorf("BaseURL = %q", s.BaseURL)
	}
	if s.Scraper.MaxRetries != 5 || s.Scraper.Delay != 500*time.Millisecond {
		t.Errorf("scraper = %+v", s.Scraper)
	}
	if s.OCR.DPI != 150 {
		t.Errorf("DPI = %d", s.OCR.DPI)
	}
	// untouched keys keep defaults
	if s.OCR.Workers != 2 {
		t.Errorf("Workers = %d", s.OCR.Workers)
	}
}

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if s.BaseURL != "https://lda.gop.pk" {
		t.Errorf("BaseURL = %q", s.BaseURL)
	}
}

func TestLoadSettingsEnvOverride(t *testing.T) {
	t.Setenv("LDA_BASE_URL", "https://env.example.org")
	t.Setenv("LDA_OCR_WORKERS", "4")
	s, err := LoadSettings("")
	if err != nil {
		t.Fatal(err)
	}
	if s.BaseURL != "https://env.example.org" {
		t.Errorf("BaseURL = %q", s.BaseURL)
	}
	if s.OCR.Workers != 4 {
		t.Errorf("Workers = %d", s.OCR.Workers)
	}
}

func TestLoadSettingsFlagOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("base-url", "", "")
	flags.String("database", "", "")
	if err := flags.Parse([]string{"--base-url=https://flag.example.org", "--database=/tmp/x.db"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LDA_BASE_URL", "https://env.example.org")

	s, err := LoadSettingsWithFlags("", flags)
	if err != nil {
		t.Fatal(err)
	}
	if s.BaseURL != "https://flag.example.org" {
		t.Errorf("BaseURL = %q, flags must beat env", s.BaseURL)
	}
	if s.DatabasePath != "/tmp/x.db" {
		t.Errorf("DatabasePath = %q", s.DatabasePath)
	}
}

func TestValidateSettings(t *testing.T) {
	base := func() *Settings {
		s, err := LoadSettings("")
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty base url", func(s *Settings) { s.BaseURL = "" }},
		{"empty database path", func(s *Settings) { s.DatabasePath = "" }},
		{"zero retries", func(s *Settings) { s.Scraper.MaxRetries = 0 }},
		{"negative delay", func(s *Settings) { s.Scraper.Delay = -time.Second }},
		{"no languages", func(s *Settings) { s.OCR.Languages = nil }},
		{"tiny dpi", func(s *Settings) { s.OCR.DPI = 50 }},
		{"zero workers", func(s *Settings) { s.OCR.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			if err := ValidateSettings(s); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	s := &Settings{
		DataDir:      filepath.Join(root, "data"),
		CacheDir:     filepath.Join(root, "data", "pdfs"),
		DatabasePath: filepath.Join(root, "data", "lda.db"),
	}
	if err := EnsureDirs(s); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{s.DataDir, s.CacheDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("dir %s not created: %v", dir, err)
		}
	}
}

func TestLoadTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	content := `
advocacy_topics:
  public transport:
    - bus rapid transit
    - metro bus
  green spaces:
    - park
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(topics.AdvocacyTopics) != 2 {
		t.Errorf("topics = %+v", topics.AdvocacyTopics)
	}
	if kws := topics.AdvocacyTopics["public transport"]; len(kws) != 2 || kws[0] != "bus rapid transit" {
		t.Errorf("keywords = %v", kws)
	}
}

func TestLoadTopicsRejectsEmpty(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("advocacy_topics: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTopics(empty); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}

	noKeywords := filepath.Join(dir, "nokw.yaml")
	if err := os.WriteFile(noKeywords, []byte("advocacy_topics:\n  zoning: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTopics(noKeywords); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadTopicsMissingFile(t *testing.T) {
	if _, err := LoadTopics(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteDefaultTopicsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	if err := WriteDefaultTopics(path); err != nil {
		t.Fatal(err)
	}
	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(topics.AdvocacyTopics) != len(DefaultTopics()) {
		t.Errorf("topics = %d, want %d", len(topics.AdvocacyTopics), len(DefaultTopics()))
	}
	if err := WriteDefaultTopics(path); err == nil {
		t.Error("expected refusal to overwrite existing file")
	}
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/osmkhan/lda-scraper/pkg/lda/internalerr"
)

// Topics maps advocacy topic names to the keywords that signal them.
type Topics struct {
	AdvocacyTopics map[string][]string `yaml:"advocacy_topics"`
}

// LoadTopics reads a topic definition file.
func LoadTopics(path string) (*Topics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics: %w", err)
	}
	var topics Topics
	if err := yaml.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("parse topics %s: %w", path, err)
	}
	if len(topics.AdvocacyTopics) == 0 {
		return nil, fmt.Errorf("%w: %s defines no advocacy topics", internalerr.ErrInvalidConfig, path)
	}
	for name, keywords := range topics.AdvocacyTopics {
		if len(keywords) == 0 {
			return nil, fmt.Errorf("%w: topic %q has no keywords", internalerr.ErrInvalidConfig, name)
		}
	}
	return &topics, nil
}

// WriteDefaultTopics writes a starter topic file. Refuses to overwrite an
// existing one.
func WriteDefaultTopics(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s already exists", internalerr.ErrInvalidInput, path)
	}
	topics := Topics{AdvocacyTopics: DefaultTopics()}
	data, err := yaml.Marshal(topics)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultTopics returns the built-in advocacy topic set.
func DefaultTopics() map[string][]string {
	return map[string][]string{
		"public transport": {
			"bus rapid transit", "brt", "metro bus", "orange line",
			"public transport", "feeder route", "mass transit",
		},
		"pedestrian infrastructure": {
			"footpath", "sidewalk", "pedestrian", "zebra crossing",
			"walkability", "underpass",
		},
		"green spaces": {
			"park", "green belt", "tree plantation", "urban forest",
			"open space", "horticulture",
		},
		"housing affordability": {
			"low income housing", "affordable housing", "katchi abadi",
			"apartment", "high density", "flats",
		},
		"zoning and land use": {
			"commercialization", "land use", "zoning", "master plan",
			"conversion fee", "building bylaws",
		},
	}
}

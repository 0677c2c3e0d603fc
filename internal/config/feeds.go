package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the feeds file: named sources and targets, and the feeds that
// pair them.
type File struct {
	Storage StorageConfig           `yaml:"storage"`
	Sources map[string]SourceConfig `yaml:"sources"`
	Targets map[string]TargetConfig `yaml:"targets"`
	Feeds   []FeedConfig            `yaml:"feeds"`
}

type FeedConfig struct {
	Name    string         `yaml:"name"`
	Sources []string       `yaml:"sources"`
	Targets []string       `yaml:"targets"`
	Storage *StorageConfig `yaml:"storage"`
}

type SourceConfig struct {
	Kind string `yaml:"kind"`
	// ID is the account on the source site, e.g. "nasa/528817151" for
	// Gramhir or "nasa" for Instagram.
	ID          string        `yaml:"id"`
	URL         string        `yaml:"url"`
	Transport   string        `yaml:"transport"`
	SessionID   string        `yaml:"session_id"`
	Scroll      bool          `yaml:"scroll"`
	WaitBetween time.Duration `yaml:"wait_between"`
	Limit       int           `yaml:"limit"`
	IDs         []string      `yaml:"ids"`
}

type TargetConfig struct {
	Kind           string `yaml:"kind"`
	ChatID         int64  `yaml:"chat_id"`
	BotToken       string `yaml:"bot_token"`
	APIID          int    `yaml:"api_id"`
	APIHash        string `yaml:"api_hash"`
	Session        string `yaml:"session"`
	Peer           string `yaml:"peer"`
	NoFooter       bool   `yaml:"no_footer"`
	Summarize      bool   `yaml:"summarize"`
	DisablePreview bool   `yaml:"disable_preview"`
}

type StorageConfig struct {
	Kind     string `yaml:"kind"`
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
}

// LoadFile reads the feeds file. ${VAR} references are expanded from the
// environment so tokens can stay out of the file.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	return ParseFile(raw)
}

func ParseFile(raw []byte) (*File, error) {
	expanded := os.ExpandEnv(string(raw))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode feeds file: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("validate feeds file: %w", err)
	}

	return &f, nil
}

// Validate checks references between feeds, sources and targets. Whether a
// kind exists is checked later, when the feed is built.
func (f *File) Validate() error {
	var errs []error

	for name, src := range f.Sources {
		if strings.TrimSpace(src.Kind) == "" {
			errs = append(errs, fmt.Errorf("source %q: kind is required", name))
		}
	}

	for name, trg := range f.Targets {
		if strings.TrimSpace(trg.Kind) == "" {
			errs = append(errs, fmt.Errorf("target %q: kind is required", name))
		}
	}

	seen := make(map[string]struct{}, len(f.Feeds))

	for i, feed := range f.Feeds {
		name := strings.TrimSpace(feed.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("feed #%d: name is required", i+1))
			continue
		}

		if _, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("feed %q: duplicate name", name))
		}
		seen[name] = struct{}{}

		for _, src := range feed.Sources {
			if _, ok := f.Sources[src]; !ok {
				errs = append(errs, fmt.Errorf("feed %q: unknown source %q", name, src))
			}
		}

		for _, trg := range feed.Targets {
			if _, ok := f.Targets[trg]; !ok {
				errs = append(errs, fmt.Errorf("feed %q: unknown target %q", name, trg))
			}
		}
	}

	return errors.Join(errs...)
}

// FeedStorage returns the storage config of the feed, falling back to the
// file-wide one and then to sqlite at dbPath. A sqlite config without a path
// also uses dbPath.
func (f *File) FeedStorage(feed FeedConfig, dbPath string) StorageConfig {
	cfg := StorageConfig{Kind: "sqlite"}

	switch {
	case feed.Storage != nil && feed.Storage.Kind != "":
		cfg = *feed.Storage
	case f.Storage.Kind != "":
		cfg = f.Storage
	}

	if cfg.Kind == "sqlite" && cfg.Path == "" {
		cfg.Path = dbPath
	}

	return cfg
}

// Package config reads the repoSpanner settings of a git repository.
//
// Settings live in the repository's own git config file under the
// [repospanner] section:
//
//	[repospanner]
//		enabled = true
//		url = https://repospanner.example.com:8443/repo/project
//		cert = /etc/pki/repospanner/client.crt
//		key = /etc/pki/repospanner/client.key
//		cacert = /etc/pki/repospanner/ca.crt
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gitconfig "github.com/go-git/go-git/v5/plumbing/format/config"

	"github.com/wolfeidau/repospanner"
)

const (
	// Section is the git config section holding repoSpanner settings.
	Section = "repospanner"

	// DebugEnv enables transport-level debug logging when set to a true
	// value. It is read when a client is built, not when config is parsed.
	DebugEnv = "REPOSPANNER_DEBUG"
)

// Option keys within the repospanner section.
const (
	KeyEnabled = "enabled"
	KeyURL     = "url"
	KeyCert    = "cert"
	KeyKey     = "key"
	KeyCACert  = "cacert"
)

// Config holds the repoSpanner settings of one repository.
type Config struct {
	Enabled bool
	URL     string
	Cert    string
	Key     string
	CACert  string

	// Debug enables transport-level debug logging. It is never set from the
	// git config; DebugEnv also enables it.
	Debug bool
}

// Load reads the config file of the repository at gitDir.
// A repository without a config file is treated as not enabled.
func Load(gitDir string) (Config, error) {
	f, err := os.Open(filepath.Join(gitDir, "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("opening repository config: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse decodes git config text and extracts the repospanner section.
func Parse(r io.Reader) (Config, error) {
	raw := gitconfig.New()
	if err := gitconfig.NewDecoder(r).Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decoding repository config: %w", err)
	}

	var cfg Config
	if !raw.HasSection(Section) {
		return cfg, nil
	}
	sect := raw.Section(Section)

	if sect.HasOption(KeyEnabled) {
		enabled, err := parseBool(sect.Option(KeyEnabled))
		if err != nil {
			return Config{}, fmt.Errorf("%s.%s: %w", Section, KeyEnabled, err)
		}
		cfg.Enabled = enabled
	}

	cfg.URL = sect.Option(KeyURL)
	cfg.Cert = sect.Option(KeyCert)
	cfg.Key = sect.Option(KeyKey)
	cfg.CACert = sect.Option(KeyCACert)

	return cfg, nil
}

// Validate checks the settings required to construct a client.
// It returns repospanner.ErrDisabled when the feature is off, otherwise a
// *repospanner.ConfigMissingError naming the first absent option.
func (c Config) Validate() error {
	if !c.Enabled {
		return repospanner.ErrDisabled
	}

	required := []struct {
		field string
		value string
	}{
		{KeyURL, c.URL},
		{KeyCert, c.Cert},
		{KeyKey, c.Key},
		{KeyCACert, c.CACert},
	}
	for _, r := range required {
		if r.value == "" {
			return &repospanner.ConfigMissingError{Field: r.field}
		}
	}
	return nil
}

// parseBool implements git's boolean values; an option without a value is true.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, errors.New("invalid boolean value " + v)
}

// Package config loads and merges the editor's profile configuration:
// search bases, server-binding options, and output-format defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v2"
)

const (
	DefaultProfile    = "default"
	DefaultFormat     = "native"
	DefaultBinaryMode = "utf8"
)

// Config is one named profile's settings, loaded from a profile file
// and/or overridden from the command line.
type Config struct {
	SearchBases []string `yaml:"bases"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	TLS         bool     `yaml:"tls"`
	BindDN      string   `yaml:"bind_dn"`
	Format      string   `yaml:"format"`      // "native" or "strict"
	BinaryMode  string   `yaml:"binary_mode"` // "ascii", "utf8", or "junk"
}

func defaultConfig() *Config {
	return &Config{
		Format:     DefaultFormat,
		BinaryMode: DefaultBinaryMode,
	}
}

// Unmarshal decodes one profile's YAML body and validates it.
func Unmarshal(content []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads a single-profile YAML file directly, bypassing
// the named-profile lookup in LoadProfile.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return LoadConfigString(content)
}

// LoadConfigString decodes a single-profile YAML document.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

// profileFile is the on-disk shape of ~/.ldapvirc: a map from profile
// name to that profile's settings.
type profileFile map[string]*Config

// LoadProfile reads the profile named name out of path (typically
// "~/.ldapvirc"). A missing file is not an error: it returns the
// default profile (DefaultFormat, DefaultBinaryMode), so a first run
// works with no setup.
func LoadProfile(path, name string) (*Config, error) {
	if name == "" {
		name = DefaultProfile
	}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", path, err.Error())
	}
	var file profileFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("invalid profile file %v: %v", path, err.Error())
	}
	cfg, ok := file[name]
	if !ok {
		if name == DefaultProfile {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("no profile named %q in %v", name, path)
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.BinaryMode == "" {
		cfg.BinaryMode = DefaultBinaryMode
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("profile %q in %v: %v", name, path, err)
	}
	return cfg, nil
}

// DefaultProfilePath returns "~/.ldapvirc" expanded against the
// current user's home directory.
func DefaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ldapvirc"
	}
	return filepath.Join(home, ".ldapvirc")
}

// Merge combines a profile-loaded base configuration with CLI-supplied
// overrides in cli. Per the rule that CLI-supplied search bases fully
// replace (never append to) the profile's bases, a non-empty
// cli.SearchBases wins outright; every other field merges individually,
// with cli's value taking precedence only when it is non-zero.
func Merge(base, cli *Config) *Config {
	merged := *base
	if len(cli.SearchBases) > 0 {
		merged.SearchBases = cli.SearchBases
	}
	if cli.Host != "" {
		merged.Host = cli.Host
	}
	if cli.Port != 0 {
		merged.Port = cli.Port
	}
	if cli.TLS {
		merged.TLS = true
	}
	if cli.BindDN != "" {
		merged.BindDN = cli.BindDN
	}
	if cli.Format != "" {
		merged.Format = cli.Format
	}
	if cli.BinaryMode != "" {
		merged.BinaryMode = cli.BinaryMode
	}
	return &merged
}

func (c *Config) validate() error {
	switch c.Format {
	case "", DefaultFormat, "strict":
	default:
		return fmt.Errorf("unknown format %q: must be 'native' or 'strict'", c.Format)
	}
	switch c.BinaryMode {
	case "", "ascii", "utf8", "junk":
	default:
		return fmt.Errorf("unknown binary mode %q: must be 'ascii', 'utf8' or 'junk'", c.BinaryMode)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

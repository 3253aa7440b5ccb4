// Package config loads and validates /etc/precached/precached.conf.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration tree.
type Config struct {
	User  string `yaml:"user"`
	Group string `yaml:"group"`

	// WorkerThreads is either a positive integer or the literal "auto"
	// (resolved to runtime.NumCPU() at load time).
	WorkerThreads string `yaml:"worker_threads"`

	Whitelist        []string `yaml:"whitelist"`
	Blacklist        []string `yaml:"blacklist"`
	ProgramWhitelist []string `yaml:"program_whitelist"`
	ProgramBlacklist []string `yaml:"program_blacklist"`

	StateDir   string `yaml:"state_dir"`
	IOTraceDir string `yaml:"iotrace_dir"`

	DisabledPlugins []string `yaml:"disabled_plugins"`
	DisabledHooks   []string `yaml:"disabled_hooks"`

	// ResolvedWorkerThreads is computed from WorkerThreads at Load time.
	ResolvedWorkerThreads int `yaml:"-"`
}

const (
	defaultStateDir   = "/var/lib/precached"
	defaultIOTraceDir = "iotrace"

	// DefaultPath is where the daemon and CLI look for the config file
	// absent an explicit --config flag.
	DefaultPath = "/etc/precached/precached.conf"
)

// Load reads and validates path. Unlike the teacher's optional-manifest
// pattern, a missing or invalid config file is fatal: the daemon has no
// sensible default identity to drop privileges to.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config %q: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = defaultStateDir
	}
	if c.IOTraceDir == "" {
		c.IOTraceDir = defaultIOTraceDir
	}
	if c.WorkerThreads == "" {
		c.WorkerThreads = "auto"
	}
}

func (c *Config) validate() error {
	if c.User == "" {
		return fmt.Errorf("%q is required (no default privilege-drop identity)", "user")
	}
	if !filepath.IsAbs(c.StateDir) {
		return fmt.Errorf("state_dir %q must be an absolute path", c.StateDir)
	}
	if filepath.IsAbs(c.IOTraceDir) {
		return fmt.Errorf("iotrace_dir %q must be relative to state_dir, got an absolute path", c.IOTraceDir)
	}

	n, err := resolveWorkerThreads(c.WorkerThreads)
	if err != nil {
		return err
	}
	c.ResolvedWorkerThreads = n

	for _, pat := range append(append(append([]string{}, c.Whitelist...), c.Blacklist...),
		append(c.ProgramWhitelist, c.ProgramBlacklist...)...) {
		if _, err := filepath.Match(pat, "probe"); err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", pat, err)
		}
	}

	return nil
}

// IOTraceAbsDir returns the absolute path to the trace artifact directory.
func (c *Config) IOTraceAbsDir() string {
	return filepath.Join(c.StateDir, c.IOTraceDir)
}

// HotApplicationsStatePath returns the absolute path to the histogram
// state file.
func (c *Config) HotApplicationsStatePath() string {
	return filepath.Join(c.StateDir, "hot_applications.state")
}

// CatalogDBPath returns the absolute path to the TraceStore sqlite index.
func (c *Config) CatalogDBPath() string {
	return filepath.Join(c.StateDir, "catalog.db")
}

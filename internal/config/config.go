package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusktreader/site-nine/internal/domain"
)

const (
	DefaultBusyRetries = 2
	MaxBusyRetries     = 10
	DefaultAddr        = "127.0.0.1:8080"
	DefaultBasePath    = "/v1"
)

// Config models .opencode/config.yaml.
type Config struct {
	Project struct {
		Name        string `yaml:"name"`
		Type        string `yaml:"type"`
		Description string `yaml:"description,omitempty"`
	} `yaml:"project"`
	Features struct {
		PMSystem         bool `yaml:"pm_system"`
		SessionTracking  bool `yaml:"session_tracking"`
		CommitGuidelines bool `yaml:"commit_guidelines"`
		DaemonNaming     bool `yaml:"daemon_naming"`
	} `yaml:"features"`
	Store struct {
		BusyTimeout string `yaml:"busy_timeout"`
		BusyRetries *int   `yaml:"busy_retries,omitempty"`
	} `yaml:"store"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	// Personas extends the built-in persona catalog.
	Personas []PersonaSeed `yaml:"personas,omitempty"`
	// Webhooks receive audit events while the API server runs.
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

type PersonaSeed struct {
	Name        string `yaml:"name"`
	Role        string `yaml:"role"`
	Mythology   string `yaml:"mythology"`
	Description string `yaml:"description"`
}

//go:embed personas.yaml
var builtinPersonas []byte

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run s9 init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(filepath.Base(absOrSelf(workspace))), nil
		}
		return nil, err
	}
	return cfg, nil
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project.Name) == "" {
		return fmt.Errorf("config.project.name is required")
	}
	if c.Store.BusyTimeout != "" {
		d, err := time.ParseDuration(c.Store.BusyTimeout)
		if err != nil {
			return fmt.Errorf("config.store.busy_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("config.store.busy_timeout must not be negative")
		}
	}
	if r := c.Store.BusyRetries; r != nil && (*r < 0 || *r > MaxBusyRetries) {
		return fmt.Errorf("config.store.busy_retries must be between 0 and %d", MaxBusyRetries)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	seen := map[string]bool{}
	for i, p := range c.Personas {
		if err := p.validate(); err != nil {
			return fmt.Errorf("config.personas[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("config.personas[%d]: duplicate name %s", i, p.Name)
		}
		seen[p.Name] = true
	}
	for i, w := range c.Webhooks {
		if strings.TrimSpace(w.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be http or https", i)
		}
		if w.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func (p PersonaSeed) validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Name != strings.ToLower(p.Name) {
		return fmt.Errorf("name %s must be lowercase", p.Name)
	}
	if _, err := domain.ParseRole(p.Role); err != nil {
		return err
	}
	if p.Mythology == "" {
		return fmt.Errorf("persona %s: mythology is required", p.Name)
	}
	return nil
}

// BusyTimeout returns the configured lock wait, or zero for the store default.
func (c *Config) BusyTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Store.BusyTimeout)
	return d
}

func (c *Config) BusyRetries() int {
	if c.Store.BusyRetries == nil {
		return DefaultBusyRetries
	}
	return *c.Store.BusyRetries
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".opencode", "config.yaml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectName string) string {
	return fmt.Sprintf(defaultTemplate, projectName)
}

// Default returns the default Config struct for a project.
func Default(projectName string) *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault(projectName)), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write stores cfg at the workspace config path, creating directories.
func Write(workspace string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AllPersonas returns the built-in catalog followed by any configured extras.
// Extras replace built-ins of the same name.
func (c *Config) AllPersonas() ([]PersonaSeed, error) {
	var builtin []PersonaSeed
	if err := yaml.Unmarshal(builtinPersonas, &builtin); err != nil {
		return nil, fmt.Errorf("builtin personas: %w", err)
	}
	override := map[string]PersonaSeed{}
	for _, p := range c.Personas {
		override[p.Name] = p
	}
	out := make([]PersonaSeed, 0, len(builtin)+len(c.Personas))
	for _, p := range builtin {
		if o, ok := override[p.Name]; ok {
			out = append(out, o)
			delete(override, p.Name)
			continue
		}
		out = append(out, p)
	}
	for _, p := range c.Personas {
		if _, ok := override[p.Name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

const defaultTemplate = `project:
  name: %q
  type: software

features:
  pm_system: true
  session_tracking: true
  commit_guidelines: true
  daemon_naming: true

store:
  busy_timeout: 5s
  busy_retries: 2

server:
  addr: 127.0.0.1:8080
  base_path: /v1
`

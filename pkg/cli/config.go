package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name.
	DefaultBaseDir = ".brokerdial"
	// DefaultConfigFile is the configuration filename.
	DefaultConfigFile = "config.yaml"
)

// Backends a context can name.
const (
	BackendRealtime = "realtime"
	BackendGemini   = "gemini"
)

// Config is the configuration file of a CLI app.
type Config struct {
	// AppName is the application name, e.g. "brokerdial".
	AppName string `yaml:"-"`

	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is one named deployment: which voice backend to call through
// and where call data is kept.
type Context struct {
	Name string `yaml:"name"`

	// Backend is "realtime" (OpenAI-compatible websocket) or "gemini".
	Backend string `yaml:"backend"`

	// APIKey authenticates with the backend. When empty the backend's
	// usual environment variable is consulted.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the backend endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	Model string `yaml:"model,omitempty"`
	Voice string `yaml:"voice,omitempty"`

	// DataDir holds the CRM database and local recordings. Defaults to
	// ~/.brokerdial/<app>/data/<context>.
	DataDir string `yaml:"data_dir,omitempty"`

	// S3 stores committed recordings in a bucket instead of DataDir.
	S3 *S3Config `yaml:"s3,omitempty"`

	// Listen is the address of the HTTP API served by "serve".
	Listen string `yaml:"listen,omitempty"`

	// Debounce is how long an ended call stays on screen, e.g. "2s".
	Debounce string `yaml:"debounce,omitempty"`

	// Extra stores settings without a dedicated field.
	Extra map[string]string `yaml:"extra,omitempty"`
}

// S3Config locates the recordings bucket. Credentials come from the
// standard AWS environment.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// LoadConfig loads or creates the configuration for appName.
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigIfExists loads the default configuration of appName, or
// returns nil when it has not been created yet.
func LoadConfigIfExists(appName string) *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	cfg, err := LoadConfigWithPath(appName, path)
	if err != nil {
		return nil
	}
	return cfg
}

// LoadConfigWithPath loads configuration from customPath, or the default
// location when it is empty. A missing file is created.
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cli: home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return nil, fmt.Errorf("cli: create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", configPath, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		ctx.Name = name
	}
	cfg.AppName = appName
	cfg.configPath = configPath
	return cfg, nil
}

// Save writes the configuration. The file may hold API keys and is
// created owner-readable only.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.configPath
}

// AddContext validates ctx, stores it under name and saves. The first
// context added becomes current.
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return errors.New("cli: context name is required")
	}
	ctx.Name = name
	if err := ctx.Validate(); err != nil {
		return err
	}
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context and saves.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext makes name current and saves.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns the named context.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("cli: context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name
// is empty.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		if c.CurrentContext == "" {
			return nil, errors.New("cli: no current context; run 'config add-context'")
		}
		name = c.CurrentContext
	}
	return c.GetContext(name)
}

// ListContexts returns the context names in sorted order.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks the backend and the debounce value.
func (ctx *Context) Validate() error {
	switch ctx.Backend {
	case BackendRealtime, BackendGemini:
	case "":
		return fmt.Errorf("cli: context %q: backend is required", ctx.Name)
	default:
		return fmt.Errorf("cli: context %q: unknown backend %q", ctx.Name, ctx.Backend)
	}
	if ctx.S3 != nil && ctx.S3.Bucket == "" {
		return fmt.Errorf("cli: context %q: s3 bucket is required", ctx.Name)
	}
	if _, err := ctx.DebounceDuration(); err != nil {
		return err
	}
	return nil
}

// DebounceDuration parses Debounce. Empty means zero, which callers treat
// as their default.
func (ctx *Context) DebounceDuration() (time.Duration, error) {
	if ctx.Debounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(ctx.Debounce)
	if err != nil {
		return 0, fmt.Errorf("cli: context %q: debounce: %w", ctx.Name, err)
	}
	return d, nil
}

// ResolveAPIKey returns APIKey or the first non-empty environment
// variable among envs.
func (ctx *Context) ResolveAPIKey(envs ...string) string {
	if ctx.APIKey != "" {
		return ctx.APIKey
	}
	for _, e := range envs {
		if v := os.Getenv(e); v != "" {
			return v
		}
	}
	return ""
}

// GetExtra returns an extra value.
func (ctx *Context) GetExtra(key string) string {
	if ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value.
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// MaskAPIKey masks all but the first and last four characters.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DirName is the per-user and per-repo configuration directory name.
const DirName = ".wardrobe"

// LLMConfig selects and tunes the text-generation backend.
type LLMConfig struct {
	// Provider is a registered provider name: "openai" or "http".
	Provider string `json:"provider,omitempty"`

	// BaseURL is the API root ("https://api.openai.com/v1") for openai, or the
	// full endpoint URL for http.
	BaseURL string `json:"base_url,omitempty"`

	Model string `json:"model,omitempty"`

	// APIKey is only read from the environment and never written to disk.
	APIKey string `json:"-"`

	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// TimeoutSeconds bounds a single generation request.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`

	// RequestsPerMinute and Burst configure the client-side rate limiter.
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	Burst             int `json:"burst,omitempty"`

	// MaxRetries applies to the http provider on 429 and 5xx responses.
	MaxRetries int `json:"max_retries,omitempty"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // json or console
}

// WebConfig controls the HTTP server started by "wardrobe serve".
type WebConfig struct {
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// ChatWindow is the number of most recent chat messages embedded in a prompt.
	ChatWindow int `json:"chat_window,omitempty"`

	LLM LLMConfig `json:"llm"`
	Log LogConfig `json:"log"`
	Web WebConfig `json:"web"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.wardrobe/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ChatWindow: 12,
		LLM: LLMConfig{
			Provider:          "openai",
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Temperature:       0.2,
			MaxTokens:         256,
			TimeoutSeconds:    60,
			RequestsPerMinute: 30,
			Burst:             2,
			MaxRetries:        2,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Web: WebConfig{Bind: "127.0.0.1", Port: 8787},
	}
}

// envOverlay is the set of environment variables that override file config.
type envOverlay struct {
	LLMProvider  string        `env:"WARDROBE_LLM_PROVIDER"`
	LLMBaseURL   string        `env:"WARDROBE_LLM_BASE_URL"`
	LLMModel     string        `env:"WARDROBE_LLM_MODEL"`
	LLMAPIKey    string        `env:"WARDROBE_LLM_API_KEY"`
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	LLMTimeout   time.Duration `env:"WARDROBE_LLM_TIMEOUT"`
	LogLevel     string        `env:"WARDROBE_LOG_LEVEL"`
	LogFormat    string        `env:"WARDROBE_LOG_FORMAT"`
	WebBind      string        `env:"WARDROBE_WEB_BIND"`
	WebPort      int           `env:"WARDROBE_WEB_PORT"`
	ChatWindow   int           `env:"WARDROBE_CHAT_WINDOW"`
}

// Load loads configuration from baseDir/config.json, then applies
// environment overrides. A baseDir/.env file is loaded first if present.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.wardrobe.
func Load(baseDir string) (*Config, error) {
	loadDotEnv(baseDir)
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return applyEnv(cfg)
}

// LoadWithRepo loads configuration from both global (~/.wardrobe) and repo (.wardrobe) directories.
// Repo config is found by walking upward from startDir to find the nearest .wardrobe/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Environment variables win over both.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	loadDotEnv(globalDir)

	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return applyEnv(Merge(Merge(DefaultConfig(), global), repo))
}

// FindRepoConfig walks upward from startDir to find the nearest .wardrobe/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadDotEnv loads dir/.env and ./.env without overriding variables that
// are already set. Missing files are ignored.
func loadDotEnv(dir string) {
	for _, p := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// applyEnv overlays WARDROBE_* environment variables onto cfg.
func applyEnv(cfg *Config) (*Config, error) {
	var ov envOverlay
	if err := env.Parse(&ov); err != nil {
		return nil, err
	}

	if ov.LLMProvider != "" {
		cfg.LLM.Provider = ov.LLMProvider
	}
	if ov.LLMBaseURL != "" {
		cfg.LLM.BaseURL = ov.LLMBaseURL
	}
	if ov.LLMModel != "" {
		cfg.LLM.Model = ov.LLMModel
	}
	cfg.LLM.APIKey = ov.LLMAPIKey
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = ov.OpenAIAPIKey
	}
	if ov.LLMTimeout > 0 {
		cfg.LLM.TimeoutSeconds = int(ov.LLMTimeout.Seconds())
	}
	if ov.LogLevel != "" {
		cfg.Log.Level = ov.LogLevel
	}
	if ov.LogFormat != "" {
		cfg.Log.Format = ov.LogFormat
	}
	if ov.WebBind != "" {
		cfg.Web.Bind = ov.WebBind
	}
	if ov.WebPort > 0 {
		cfg.Web.Port = ov.WebPort
	}
	if ov.ChatWindow > 0 {
		cfg.ChatWindow = ov.ChatWindow
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.ChatWindow = pick(overlay.ChatWindow, base.ChatWindow)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.LLM = LLMConfig{
		Provider:          pick(overlay.LLM.Provider, base.LLM.Provider),
		BaseURL:           pick(overlay.LLM.BaseURL, base.LLM.BaseURL),
		Model:             pick(overlay.LLM.Model, base.LLM.Model),
		APIKey:            pick(overlay.LLM.APIKey, base.LLM.APIKey),
		Temperature:       pick(overlay.LLM.Temperature, base.LLM.Temperature),
		MaxTokens:         pick(overlay.LLM.MaxTokens, base.LLM.MaxTokens),
		TimeoutSeconds:    pick(overlay.LLM.TimeoutSeconds, base.LLM.TimeoutSeconds),
		RequestsPerMinute: pick(overlay.LLM.RequestsPerMinute, base.LLM.RequestsPerMinute),
		Burst:             pick(overlay.LLM.Burst, base.LLM.Burst),
		MaxRetries:        pick(overlay.LLM.MaxRetries, base.LLM.MaxRetries),
	}
	result.Log = LogConfig{
		Level:  pick(overlay.Log.Level, base.Log.Level),
		Format: pick(overlay.Log.Format, base.Log.Format),
	}
	result.Web = WebConfig{
		Bind: pick(overlay.Web.Bind, base.Web.Bind),
		Port: pick(overlay.Web.Port, base.Web.Port),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay unless it is the zero value.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

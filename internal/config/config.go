package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hpungsan/promptpack/internal/errors"
)

// Selection modes.
const (
	ModeVector = "vector"
	ModeAI     = "ai"
	ModeAuto   = "auto"
)

// Config holds application configuration.
type Config struct {
	// SelectionMode chooses the ranking strategy: "vector", "ai", or "auto".
	// Auto tries vector, then AI-assisted; rule-based is always the terminal fallback.
	SelectionMode string `json:"selection_mode"`

	// IncludePatterns lists patterns that are never ignored, even when they
	// match an ignore rule.
	IncludePatterns []string `json:"include_patterns,omitempty"`

	// ExcludePatterns lists extra ignore patterns merged with the builtin set
	// and the repository ignore files.
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`

	// EmbeddingModel names the embedding backend. "keyword" selects the local
	// keyword-frequency embedder; anything else is treated as a remote model
	// name (e.g. "embedding-001").
	EmbeddingModel string `json:"embedding_model"`

	// GenerativeModel names the generative model used for AI-assisted
	// selection and document generation.
	GenerativeModel string `json:"generative_model"`

	// MaxVectorFiles caps how many candidates the vector strategy returns (K).
	MaxVectorFiles int `json:"max_vector_files"`

	// MinSimilarity is the cosine similarity floor for vector candidates.
	MinSimilarity float64 `json:"min_similarity"`

	// TokenLimit is the hard token ceiling for the assembled context.
	TokenLimit int `json:"token_limit"`

	// BufferFraction is the share of TokenLimit deliberately left unused.
	BufferFraction float64 `json:"buffer_fraction"`

	// MaxRemoteAttempts bounds retries for rate-limited remote calls.
	MaxRemoteAttempts int `json:"max_remote_attempts"`

	// DebugRemoteCalls persists every remote prompt and response to the run store.
	DebugRemoteCalls bool `json:"debug_remote_calls,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// APIKey is the generative-service API key. Never read from the config
	// file; only from GEMINI_API_KEY (optionally via a .env file).
	APIKey string `json:"-"`

	// BaseURL overrides the remote endpoint, for proxies and tests.
	// Only read from GEMINI_BASE_URL; empty means the public endpoint.
	BaseURL string `json:"-"`
}

// DefaultConfig returns the default configuration.
// Defaults track the Gemini 1.5 Pro context window and the documented
// 95% budget utilization / 0.6 similarity floor.
func DefaultConfig() *Config {
	return &Config{
		SelectionMode:     ModeAuto,
		EmbeddingModel:    "embedding-001",
		GenerativeModel:   "gemini-1.5-pro",
		MaxVectorFiles:    10,
		MinSimilarity:     0.6,
		TokenLimit:        1_800_000,
		BufferFraction:    0.05,
		MaxRemoteAttempts: 3,
	}
}

// Load loads configuration from baseDir/config.json, applies environment
// overrides, and validates the result.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithRepo loads configuration from both the global dir and the nearest
// repository-local .promptpack/config.json found walking upward from startDir.
// Repo config takes precedence for scalars; pattern lists are merged.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest
// .promptpack/config.json. Returns empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".promptpack", "config.json")
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

// applyEnv loads a .env file if present and applies environment overrides.
// Environment always wins over file values.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.APIKey = key
	}
	if u := os.Getenv("GEMINI_BASE_URL"); u != "" {
		c.BaseURL = u
	}
	if v := os.Getenv("PROMPTPACK_DEBUG_REMOTE"); v != "" {
		c.DebugRemoteCalls = strings.EqualFold(v, "true") || v == "1"
	}
	if mode := os.Getenv("PROMPTPACK_SELECTION_MODE"); mode != "" {
		c.SelectionMode = strings.ToLower(mode)
	}
}

// Validate checks every recognized option. Any violation is an
// INVALID_CONFIG error: fatal, surfaced immediately, no fallback.
func (c *Config) Validate() error {
	switch c.SelectionMode {
	case ModeVector, ModeAI, ModeAuto:
	default:
		return errors.NewInvalidConfig("selection_mode must be one of: vector, ai, auto")
	}
	if c.EmbeddingModel == "" {
		return errors.NewInvalidConfig("embedding_model is required")
	}
	if c.GenerativeModel == "" {
		return errors.NewInvalidConfig("generative_model is required")
	}
	if c.MaxVectorFiles <= 0 {
		return errors.NewInvalidConfig("max_vector_files must be positive")
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return errors.NewInvalidConfig("min_similarity must be in [0, 1]")
	}
	if c.TokenLimit < 0 {
		return errors.NewInvalidConfig("token_limit must not be negative")
	}
	if c.BufferFraction < 0 || c.BufferFraction >= 1 {
		return errors.NewInvalidConfig("buffer_fraction must be in [0, 1)")
	}
	if c.MaxRemoteAttempts <= 0 {
		return errors.NewInvalidConfig("max_remote_attempts must be positive")
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewInvalidConfig("config file is not valid JSON: " + err.Error())
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
// Overlay values take precedence for scalars; pattern lists are merged and
// deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.SelectionMode = overlay.SelectionMode
	if result.SelectionMode == "" {
		result.SelectionMode = base.SelectionMode
	}
	result.EmbeddingModel = overlay.EmbeddingModel
	if result.EmbeddingModel == "" {
		result.EmbeddingModel = base.EmbeddingModel
	}
	result.GenerativeModel = overlay.GenerativeModel
	if result.GenerativeModel == "" {
		result.GenerativeModel = base.GenerativeModel
	}
	result.MaxVectorFiles = overlay.MaxVectorFiles
	if result.MaxVectorFiles == 0 {
		result.MaxVectorFiles = base.MaxVectorFiles
	}
	result.MinSimilarity = overlay.MinSimilarity
	if result.MinSimilarity == 0 {
		result.MinSimilarity = base.MinSimilarity
	}
	result.TokenLimit = overlay.TokenLimit
	if result.TokenLimit == 0 {
		result.TokenLimit = base.TokenLimit
	}
	result.BufferFraction = overlay.BufferFraction
	if result.BufferFraction == 0 {
		result.BufferFraction = base.BufferFraction
	}
	result.MaxRemoteAttempts = overlay.MaxRemoteAttempts
	if result.MaxRemoteAttempts == 0 {
		result.MaxRemoteAttempts = base.MaxRemoteAttempts
	}

	result.DebugRemoteCalls = base.DebugRemoteCalls || overlay.DebugRemoteCalls

	result.IncludePatterns = mergeStringSlice(base.IncludePatterns, overlay.IncludePatterns)
	result.ExcludePatterns = mergeStringSlice(base.ExcludePatterns, overlay.ExcludePatterns)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	result.APIKey = overlay.APIKey
	if result.APIKey == "" {
		result.APIKey = base.APIKey
	}
	result.BaseURL = overlay.BaseURL
	if result.BaseURL == "" {
		result.BaseURL = base.BaseURL
	}

	return result
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

// Package config handles semcache's configuration, loaded from
// SEMCACHE_-prefixed environment variables and an optional YAML file;
// any field the file sets overrides the environment-derived value.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the similarity cache, its eviction
// policy, and the surrounding servers.
//
// Use LoadFromEnv() to build one from the environment, optionally pass
// it to LoadFromFile() to overlay a YAML file on top, then call
// Validate() before wiring it into the cache.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Eviction EvictionConfig `yaml:"eviction"`
	Prefix   PrefixConfig   `yaml:"prefix"`
	Embed    EmbedConfig    `yaml:"embed"`
	LLM      LLMConfig      `yaml:"llm"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CacheConfig controls the hit/miss decision.
type CacheConfig struct {
	// MaxSize is the maximum number of cached prompts before eviction.
	MaxSize int `yaml:"max_size"`
	// HitDistanceThreshold is the maximum re-ranked distance that still
	// counts as a hit.
	HitDistanceThreshold float64 `yaml:"hit_distance_threshold"`
	// CandidatesNumber is how many nearest neighbors are fetched from
	// the index before re-ranking.
	CandidatesNumber int `yaml:"candidates_number"`
	// RankingDistanceMethod is one of Euclidean, Manhattan, Cosine.
	RankingDistanceMethod string `yaml:"ranking_distance_method"`
	// DBDistanceMethod is the index's own metric: L2, InnerProduct,
	// Cosine.
	DBDistanceMethod string `yaml:"db_distance_method"`
}

// EvictionConfig selects and parameterizes the eviction policy.
type EvictionConfig struct {
	// Policy is one of "lru", "lfu", "adaptive".
	Policy string `yaml:"policy"`
}

// PrefixConfig parameterizes the streaming prefix-length tracker.
type PrefixConfig struct {
	// Enabled turns on the streaming prefix-cache variant.
	Enabled bool `yaml:"enabled"`
	// DelayEWMASmoothingFactor is alpha in (0, 1].
	DelayEWMASmoothingFactor float64 `yaml:"delay_ewma_smoothing_factor"`
	// Bandwidth is in characters per millisecond.
	Bandwidth float64 `yaml:"bandwidth"`
	// SizeConfidenceFactor scales the delay standard deviation added to
	// the EWMA mean when sizing a prefix.
	SizeConfidenceFactor float64 `yaml:"prefix_size_confidence_factor"`
}

// EmbedConfig points at the embedding server.
type EmbedConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// LLMConfig points at the generation server.
type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig controls where persistent state lives.
type StorageConfig struct {
	// IndexDir is the BadgerDB directory backing the vector index.
	// Empty keeps the index in memory only; the cache itself is still
	// built and used.
	IndexDir string `yaml:"index_dir"`
	// ResponseDBPath is the SQLite database path backing response
	// storage. ":memory:" is valid for tests; the demo command uses
	// ":memory:" when this is empty.
	ResponseDBPath string `yaml:"response_db_path"`
}

// LoggingConfig controls stdlib log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR. It is loaded and
	// carried in Config, but no package in this module reads it.
	Level string `yaml:"level"`
}

// LoadFromEnv loads configuration from SEMCACHE_-prefixed environment
// variables, falling back to defaults for anything unset.
func LoadFromEnv() *Config {
	c := &Config{}

	c.Cache.MaxSize = getEnvInt("SEMCACHE_MAX_SIZE", 1000)
	c.Cache.HitDistanceThreshold = getEnvFloat("SEMCACHE_HIT_DISTANCE_THRESHOLD", 0.2)
	c.Cache.CandidatesNumber = getEnvInt("SEMCACHE_CANDIDATES_NUMBER", 100)
	c.Cache.RankingDistanceMethod = getEnv("SEMCACHE_RANKING_DISTANCE_METHOD", "Cosine")
	c.Cache.DBDistanceMethod = getEnv("SEMCACHE_DB_DISTANCE_METHOD", "L2")

	c.Eviction.Policy = getEnv("SEMCACHE_EVICTION_POLICY", "lru")

	c.Prefix.Enabled = getEnvBool("SEMCACHE_PREFIX_ENABLED", false)
	c.Prefix.DelayEWMASmoothingFactor = getEnvFloat("SEMCACHE_DELAY_EWMA_SMOOTHING_FACTOR", 0.3)
	c.Prefix.Bandwidth = getEnvFloat("SEMCACHE_BANDWIDTH", 0.5)
	c.Prefix.SizeConfidenceFactor = getEnvFloat("SEMCACHE_PREFIX_SIZE_CONFIDENCE_FACTOR", 2.0)

	c.Embed.BaseURL = getEnv("SEMCACHE_EMBED_BASE_URL", "http://localhost:11434")
	c.Embed.Model = getEnv("SEMCACHE_EMBED_MODEL", "nomic-embed-text")
	c.Embed.Dimensions = getEnvInt("SEMCACHE_EMBED_DIMENSIONS", 768)
	c.Embed.Timeout = getEnvDuration("SEMCACHE_EMBED_TIMEOUT", 30*time.Second)
	c.Embed.CacheSize = getEnvInt("SEMCACHE_EMBED_CACHE_SIZE", 10000)

	c.LLM.BaseURL = getEnv("SEMCACHE_LLM_BASE_URL", "http://localhost:11434")
	c.LLM.Model = getEnv("SEMCACHE_LLM_MODEL", "llama3.1:8b")
	c.LLM.Timeout = getEnvDuration("SEMCACHE_LLM_TIMEOUT", 2*time.Minute)

	c.Storage.IndexDir = getEnv("SEMCACHE_INDEX_DIR", "")
	c.Storage.ResponseDBPath = getEnv("SEMCACHE_RESPONSE_DB_PATH", "")

	c.Logging.Level = getEnv("SEMCACHE_LOG_LEVEL", "INFO")

	return c
}

// LoadFromFile reads a YAML config file and overlays it onto base (or,
// if base is nil, onto a fresh LoadFromEnv result): any field present
// in the file overrides the environment-derived value. Environment
// variables the caller set explicitly are not distinguishable from
// defaults here, so a file value always wins once present; fields the
// file omits keep base's values.
func LoadFromFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if base == nil {
		base = LoadFromEnv()
	}

	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return base, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("config: cache.max_size must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Cache.HitDistanceThreshold < 0 {
		return fmt.Errorf("config: cache.hit_distance_threshold must be non-negative, got %v", c.Cache.HitDistanceThreshold)
	}
	if c.Cache.CandidatesNumber <= 0 {
		return fmt.Errorf("config: cache.candidates_number must be positive, got %d", c.Cache.CandidatesNumber)
	}
	switch c.Cache.RankingDistanceMethod {
	case "Euclidean", "Manhattan", "Cosine":
	default:
		return fmt.Errorf("config: unknown ranking_distance_method %q", c.Cache.RankingDistanceMethod)
	}
	switch c.Cache.DBDistanceMethod {
	case "L2", "InnerProduct", "Cosine":
	default:
		return fmt.Errorf("config: unknown db_distance_method %q", c.Cache.DBDistanceMethod)
	}

	switch c.Eviction.Policy {
	case "lru", "lfu", "adaptive":
	default:
		return fmt.Errorf("config: unknown eviction.policy %q", c.Eviction.Policy)
	}

	if c.Prefix.Enabled {
		if !(c.Prefix.DelayEWMASmoothingFactor > 0 && c.Prefix.DelayEWMASmoothingFactor <= 1) {
			return fmt.Errorf("config: prefix.delay_ewma_smoothing_factor must be in (0, 1], got %v", c.Prefix.DelayEWMASmoothingFactor)
		}
		if c.Prefix.Bandwidth <= 0 {
			return fmt.Errorf("config: prefix.bandwidth must be positive, got %v", c.Prefix.Bandwidth)
		}
	}

	if c.Embed.Dimensions <= 0 {
		return fmt.Errorf("config: embed.dimensions must be positive, got %d", c.Embed.Dimensions)
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

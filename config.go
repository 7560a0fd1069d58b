package nelgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/nelgraph/linker"
	"github.com/brunobiangulo/nelgraph/ner"
	"github.com/brunobiangulo/nelgraph/sparql"
)

// Wikidata cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds all configuration for the nelgraph engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.nelgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "nelgraph".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.nelgraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// KBPath loads the knowledge base from a JSON, YAML or XLSX file. When
	// empty the stored knowledge base is used, or the builtin table on a
	// fresh database.
	KBPath string `json:"kb_path" yaml:"kb_path"`

	// Tagging
	Tagger       string  `json:"tagger" yaml:"tagger"`               // gazetteer (default), prose, llm
	FuzzyTagging bool    `json:"fuzzy_tagging" yaml:"fuzzy_tagging"` // gazetteer: also tag misspelled names
	FuzzyCutoff  float64 `json:"fuzzy_cutoff" yaml:"fuzzy_cutoff"`   // 0-100, shared by tagger and resolver

	// Linking
	LinkConcurrency int            `json:"link_concurrency" yaml:"link_concurrency"`
	Wikidata        WikidataConfig `json:"wikidata" yaml:"wikidata"`
	Redis           RedisConfig    `json:"redis" yaml:"redis"`

	// Export
	Neo4j Neo4jConfig `json:"neo4j" yaml:"neo4j"`

	// LLM providers. Chat backs the llm tagger; Embedding replaces the
	// simulated entity vectors. Both are optional.
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// EmbeddingDim is the size of stored entity vectors (must match the
	// embedding model when one is configured).
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	Log LogConfig `json:"log" yaml:"log"`
}

// WikidataConfig configures the remote resolver.
type WikidataConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Endpoint  string        `json:"endpoint" yaml:"endpoint"`
	UserAgent string        `json:"user_agent" yaml:"user_agent"`
	Language  string        `json:"language" yaml:"language"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	Cache     string        `json:"cache" yaml:"cache"` // sqlite (default), memory, redis, none
}

// RedisConfig configures the shared SPARQL response cache.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// Neo4jConfig configures graph export.
type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// LogConfig configures logging in the binaries.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
	File   string `json:"file" yaml:"file"`     // rotated log file; empty means stderr
}

// DefaultConfig returns a Config with sensible defaults.
// Database is stored in ~/.nelgraph/nelgraph.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:          "nelgraph",
		StorageDir:      "home",
		Tagger:          ner.KindGazetteer,
		FuzzyTagging:    true,
		FuzzyCutoff:     linker.DefaultCutoff,
		LinkConcurrency: 8,
		Wikidata: WikidataConfig{
			Language: "en",
			Timeout:  20 * time.Second,
			CacheTTL: 24 * time.Hour,
			Cache:    CacheSQLite,
		},
		Redis:        RedisConfig{Prefix: "nelgraph:"},
		EmbeddingDim: 64,
		Log:          LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a JSON or YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: config file %s must be .json, .yaml or .yml", ErrInvalidConfig, filepath.Base(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, filepath.Base(path), err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NELGRAPH_* environment variables. Unparsable
// values are ignored.
func (c *Config) ApplyEnv() {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("NELGRAPH_DB_PATH", &c.DBPath)
	str("NELGRAPH_DB_NAME", &c.DBName)
	str("NELGRAPH_STORAGE_DIR", &c.StorageDir)
	str("NELGRAPH_KB_PATH", &c.KBPath)
	str("NELGRAPH_TAGGER", &c.Tagger)
	str("NELGRAPH_WIKIDATA_ENDPOINT", &c.Wikidata.Endpoint)
	str("NELGRAPH_WIKIDATA_CACHE", &c.Wikidata.Cache)
	str("NELGRAPH_REDIS_ADDR", &c.Redis.Addr)
	str("NELGRAPH_REDIS_PASSWORD", &c.Redis.Password)
	str("NELGRAPH_NEO4J_URI", &c.Neo4j.URI)
	str("NELGRAPH_NEO4J_USER", &c.Neo4j.User)
	str("NELGRAPH_NEO4J_PASSWORD", &c.Neo4j.Password)
	str("NELGRAPH_NEO4J_DATABASE", &c.Neo4j.Database)
	str("NELGRAPH_CHAT_PROVIDER", &c.Chat.Provider)
	str("NELGRAPH_CHAT_MODEL", &c.Chat.Model)
	str("NELGRAPH_CHAT_BASE_URL", &c.Chat.BaseURL)
	str("NELGRAPH_CHAT_API_KEY", &c.Chat.APIKey)
	str("NELGRAPH_EMBED_PROVIDER", &c.Embedding.Provider)
	str("NELGRAPH_EMBED_MODEL", &c.Embedding.Model)
	str("NELGRAPH_EMBED_BASE_URL", &c.Embedding.BaseURL)
	str("NELGRAPH_EMBED_API_KEY", &c.Embedding.APIKey)
	str("NELGRAPH_LOG_LEVEL", &c.Log.Level)
	str("NELGRAPH_LOG_FORMAT", &c.Log.Format)
	str("NELGRAPH_LOG_FILE", &c.Log.File)

	if v, err := strconv.ParseBool(os.Getenv("NELGRAPH_WIKIDATA")); err == nil {
		c.Wikidata.Enabled = v
	}
	if v, err := strconv.ParseBool(os.Getenv("NELGRAPH_FUZZY_TAGGING")); err == nil {
		c.FuzzyTagging = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("NELGRAPH_FUZZY_CUTOFF"), 64); err == nil {
		c.FuzzyCutoff = v
	}
	if v, err := strconv.Atoi(os.Getenv("NELGRAPH_LINK_CONCURRENCY")); err == nil {
		c.LinkConcurrency = v
	}
	if v, err := strconv.Atoi(os.Getenv("NELGRAPH_EMBEDDING_DIM")); err == nil {
		c.EmbeddingDim = v
	}
	if v, err := strconv.Atoi(os.Getenv("NELGRAPH_REDIS_DB")); err == nil {
		c.Redis.DB = v
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Tagger) {
	case "", ner.KindGazetteer, ner.KindProse, ner.KindLLM:
	default:
		return fmt.Errorf("%w: unknown tagger %q", ErrInvalidConfig, c.Tagger)
	}
	if c.FuzzyCutoff < 0 || c.FuzzyCutoff > 100 {
		return fmt.Errorf("%w: fuzzy_cutoff must be within 0-100, got %v", ErrInvalidConfig, c.FuzzyCutoff)
	}
	if c.LinkConcurrency < 0 {
		return fmt.Errorf("%w: link_concurrency must not be negative", ErrInvalidConfig)
	}
	if c.EmbeddingDim < 0 {
		return fmt.Errorf("%w: embedding_dim must not be negative", ErrInvalidConfig)
	}
	switch c.Wikidata.Cache {
	case "", CacheSQLite, CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("%w: unknown wikidata cache %q", ErrInvalidConfig, c.Wikidata.Cache)
	}
	if c.Wikidata.Language != "" && !sparql.ValidLanguage(c.Wikidata.Language) {
		return fmt.Errorf("%w: invalid wikidata language %q", ErrInvalidConfig, c.Wikidata.Language)
	}
	if c.Wikidata.Cache == CacheRedis && c.Redis.Addr == "" {
		return fmt.Errorf("%w: wikidata cache redis needs redis.addr", ErrInvalidConfig)
	}
	if strings.EqualFold(c.Tagger, ner.KindLLM) && c.Chat.Provider == "" {
		return fmt.Errorf("%w: llm tagger needs a chat provider", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "nelgraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".nelgraph", name+".db")
	}
}

// ResolvedDBPath returns the database file the engine will open.
func (c *Config) ResolvedDBPath() string { return c.resolveDBPath() }

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"resume-rag/internal/models"
)

const EnvProduction = "production"

type Config struct {
	Environment  string          `yaml:"environment"`
	Log          LogConfig       `yaml:"log"`
	RAG          RAGConfig       `yaml:"rag"`
	Retrieval    RetrievalConfig `yaml:"retrieval"`
	Index        IndexConfig     `yaml:"index"`
	UploadsDir   string          `yaml:"uploads_dir"`
	EmbedLLM     LLMConfig       `yaml:"embed_llm"`
	InferenceLLM LLMConfig       `yaml:"inference_llm"`
	OCR          OCRConfig       `yaml:"ocr"`
	Render       RenderConfig    `yaml:"render"`
	Database     DatabaseConfig  `yaml:"database"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	EncryptionKey string `yaml:"encryption_key"`
}

type RetrievalConfig struct {
	TopK         int     `yaml:"top_k"`
	MaxDistance  float64 `yaml:"max_distance"`
	PreviewChars int     `yaml:"preview_chars"`
}

type IndexConfig struct {
	Backend    string `yaml:"backend"` // chromem or pgvector
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	KeyEnv      string  `yaml:"key_env"`
	Key         string  `yaml:"-"`
	Dimension   int     `yaml:"dimension"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxAttempts int     `yaml:"max_attempts"`
}

type OCRConfig struct {
	Command  string        `yaml:"command"`
	Language string        `yaml:"language"`
	DPI      int           `yaml:"dpi"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RenderConfig struct {
	Command  string        `yaml:"command"`
	DPI      int           `yaml:"dpi"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxPages int           `yaml:"max_pages"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // pgdriver or pq
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

// LoadConfig reads the YAML config at path. A missing file yields the defaults.
// Secrets are read from the environment after loading an optional .env file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := newConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	cfg.EmbedLLM.Key = os.Getenv(cfg.EmbedLLM.KeyEnv)
	cfg.InferenceLLM.Key = os.Getenv(cfg.InferenceLLM.KeyEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config populated with defaults only
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// newConfig presets the fields where zero is a valid setting. The YAML is
// decoded on top, so an explicit 0 in the file wins.
func newConfig() *Config {
	return &Config{
		RAG:          RAGConfig{ChunkOverlap: models.DefaultChunkOverlap},
		InferenceLLM: LLMConfig{Temperature: 0.5},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.Retrieval.MaxDistance <= 0 || c.Retrieval.MaxDistance > 2 {
		return fmt.Errorf("retrieval.max_distance must be in (0, 2], got %f", c.Retrieval.MaxDistance)
	}
	if c.InferenceLLM.MaxAttempts < 1 {
		return fmt.Errorf("inference_llm.max_attempts must be >= 1, got %d", c.InferenceLLM.MaxAttempts)
	}
	switch c.Index.Backend {
	case "chromem", "pgvector":
	default:
		return fmt.Errorf("unsupported index backend: %s", c.Index.Backend)
	}
	if c.Index.Backend == "pgvector" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the pgvector backend")
	}
	if key := c.RAG.EncryptionKey; key != "" && len(key) != 32 {
		return fmt.Errorf("rag.encryption_key must be 32 bytes, got %d", len(key))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = models.DefaultTopK
	}
	if cfg.Retrieval.MaxDistance == 0 {
		cfg.Retrieval.MaxDistance = models.DefaultMaxDistance
	}
	if cfg.Retrieval.PreviewChars == 0 {
		cfg.Retrieval.PreviewChars = models.DefaultPreviewChars
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "chromem"
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "./chroma_db"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "resumes"
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "./uploads"
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.Provider == "ollama" {
		if cfg.EmbedLLM.BaseURL == "" {
			cfg.EmbedLLM.BaseURL = "http://localhost:11434"
		}
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = "nomic-embed-text"
		}
	}
	if cfg.EmbedLLM.Provider == "openai" {
		if cfg.EmbedLLM.BaseURL == "" {
			cfg.EmbedLLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = "text-embedding-3-small"
		}
		if cfg.EmbedLLM.KeyEnv == "" {
			cfg.EmbedLLM.KeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.EmbedLLM.Provider == "hashing" && cfg.EmbedLLM.Dimension == 0 {
		cfg.EmbedLLM.Dimension = 512
	}

	if cfg.InferenceLLM.BaseURL == "" {
		cfg.InferenceLLM.BaseURL = "https://api.studio.nebius.com/v1/"
	}
	if cfg.InferenceLLM.Model == "" {
		cfg.InferenceLLM.Model = "mistralai/Mistral-Nemo-Instruct-2407"
	}
	if cfg.InferenceLLM.KeyEnv == "" {
		cfg.InferenceLLM.KeyEnv = "NEBIUS_API_KEY"
	}
	if cfg.InferenceLLM.MaxTokens == 0 {
		cfg.InferenceLLM.MaxTokens = 600
	}
	if cfg.InferenceLLM.MaxAttempts == 0 {
		cfg.InferenceLLM.MaxAttempts = 2
	}

	if cfg.OCR.Command == "" {
		cfg.OCR.Command = "tesseract"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = 300
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = 2 * time.Minute
	}

	if cfg.Render.Command == "" {
		cfg.Render.Command = "pdftoppm"
	}
	if cfg.Render.DPI == 0 {
		cfg.Render.DPI = 100
	}
	if cfg.Render.Timeout == 0 {
		cfg.Render.Timeout = time.Minute
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
}

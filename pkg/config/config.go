package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Milvus    MilvusConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Rerank    RerankConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	RateLimit    int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKeys        []string
	BaseURL        string
	Model          string
	RerankModel    string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type IngestConfig struct {
	UploadDir     string
	DocsDir       string
	QuarantineDir string
	ChunkMaxChars int
	ChunkMinChars int
	ChunkOverlap  int
	MaxTags       int
}

type RetrievalConfig struct {
	KPerVariant   int
	MaxCandidates int
	MaxExpansions int
	MaxSubQueries int
	TopK          int
}

type RerankConfig struct {
	WeightLLM        float64
	WeightFeedback   float64
	WeightTag        float64
	WeightSimilarity float64
	CacheTTLSec      int
	InventoryTTLSec  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docqa")

	viper.SetEnvPrefix("DOCQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.LLM.APIKeys) == 0 {
		return nil, fmt.Errorf("at least one LLM API key is required (llm.apiKeys)")
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 52428800)
	viper.SetDefault("server.rateLimit", 120)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "docqa_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/docqa.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.rerankModel", "gpt-4o")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("ingest.uploadDir", "./data/uploads")
	viper.SetDefault("ingest.docsDir", "./data/docs")
	viper.SetDefault("ingest.quarantineDir", "./data/quarantine")
	viper.SetDefault("ingest.chunkMaxChars", 1200)
	viper.SetDefault("ingest.chunkMinChars", 500)
	viper.SetDefault("ingest.chunkOverlap", 150)
	viper.SetDefault("ingest.maxTags", 6)

	viper.SetDefault("retrieval.kPerVariant", 30)
	viper.SetDefault("retrieval.maxCandidates", 50)
	viper.SetDefault("retrieval.maxExpansions", 3)
	viper.SetDefault("retrieval.maxSubQueries", 5)
	viper.SetDefault("retrieval.topK", 5)

	viper.SetDefault("rerank.weightLLM", 0.5)
	viper.SetDefault("rerank.weightFeedback", 0.2)
	viper.SetDefault("rerank.weightTag", 0.15)
	viper.SetDefault("rerank.weightSimilarity", 0.15)
	viper.SetDefault("rerank.cacheTTLSec", 3600)
	viper.SetDefault("rerank.inventoryTTLSec", 600)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}

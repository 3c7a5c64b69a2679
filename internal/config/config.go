// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"ask-pdf-go/internal/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖配置时使用的前缀，例如 ASKPDF_ELASTICSEARCH_PASSWORD。
const EnvPrefix = "ASKPDF"

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Search        SearchConfig        `mapstructure:"search"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不启用文档登记表。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不记录实时处理状态。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置，仅在异步入库模式下使用。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。ServerURL 为空时不注册 Tika 兜底解析器。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
	// InsecureSkipVerify 仅用于自签名证书的开发环境。
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai | ollama | hash
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// VectorStoreConfig 存储向量库相关的配置。
type VectorStoreConfig struct {
	Backend   string        `mapstructure:"backend"` // elasticsearch | chromem
	BatchSize int           `mapstructure:"batch_size"`
	Metric    string        `mapstructure:"metric"` // cosine | dot_product | l2_norm
	Chromem   ChromemConfig `mapstructure:"chromem"`
}

// ChromemConfig 存储内嵌向量库 chromem 的配置。Path 为空时仅保存在内存中。
type ChromemConfig struct {
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
	Compress   bool   `mapstructure:"compress"`
}

// ChunkingConfig 存储文本切块参数。
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// UploadConfig 存储上传相关的配置。
type UploadConfig struct {
	MaxSizeKB int  `mapstructure:"max_size_kb"`
	Async     bool `mapstructure:"async"`
}

// SearchConfig 存储检索相关的配置。
type SearchConfig struct {
	TopK          int `mapstructure:"top_k"`
	SnippetLength int `mapstructure:"snippet_length"`
}

// MaxUploadBytes 返回允许上传的最大字节数。
func (c UploadConfig) MaxUploadBytes() int64 {
	return int64(c.MaxSizeKB) * 1024
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"server.port":                        "8081",
		"server.mode":                        "release",
		"log.level":                          "info",
		"log.format":                         "json",
		"log.output_path":                    "",
		"database.mysql.dsn":                 "",
		"database.redis.addr":                "",
		"database.redis.password":            "",
		"database.redis.db":                  0,
		"kafka.brokers":                      "",
		"kafka.topic":                        "ask-pdf-ingest",
		"kafka.group_id":                     "ask-pdf-go-consumer",
		"tika.server_url":                    "",
		"tika.timeout_seconds":               60,
		"minio.endpoint":                     "",
		"minio.access_key_id":                "",
		"minio.secret_access_key":            "",
		"minio.use_ssl":                      false,
		"minio.bucket_name":                  "ask-pdf",
		"elasticsearch.addresses":            "http://localhost:9200",
		"elasticsearch.username":             "",
		"elasticsearch.password":             "",
		"elasticsearch.index_name":           "ask_pdf_chunks",
		"elasticsearch.insecure_skip_verify": false,
		"embedding.provider":                 "openai",
		"embedding.api_key":                  "",
		"embedding.base_url":                 "https://api.openai.com/v1",
		"embedding.model":                    "text-embedding-3-small",
		"embedding.dimensions":               0,
		"embedding.batch_size":               32,
		"vector_store.backend":               "elasticsearch",
		"vector_store.batch_size":            100,
		"vector_store.metric":                "cosine",
		"vector_store.chromem.path":          "",
		"vector_store.chromem.collection":    "ask_pdf_chunks",
		"vector_store.chromem.compress":      false,
		"chunking.chunk_size":                500,
		"chunking.chunk_overlap":             20,
		"upload.max_size_kb":                 1000,
		"upload.async":                       false,
		"search.top_k":                       5,
		"search.snippet_length":              500,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load 读取 .env、YAML 配置文件和环境变量，返回校验通过的配置。
// configPath 为空或文件不存在时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	// .env 不存在是正常情况
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 文件失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Validate 校验配置之间的约束关系。
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size 必须大于 0", model.ErrInvalidConfig)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap 必须满足 0 <= overlap < chunk_size (%d, %d)",
			model.ErrInvalidConfig, c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.VectorStore.BatchSize <= 0 {
		return fmt.Errorf("%w: vector_store.batch_size 必须大于 0", model.ErrInvalidConfig)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: embedding.batch_size 必须大于 0", model.ErrInvalidConfig)
	}
	switch c.Embedding.Provider {
	case "openai", "ollama":
	case "hash":
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("%w: hash 向量模型需要配置 embedding.dimensions", model.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: 未知的 embedding.provider '%s'", model.ErrInvalidConfig, c.Embedding.Provider)
	}
	switch c.VectorStore.Metric {
	case "cosine", "dot_product", "l2_norm":
	default:
		return fmt.Errorf("%w: 未知的相似度度量 '%s'", model.ErrInvalidConfig, c.VectorStore.Metric)
	}
	switch c.VectorStore.Backend {
	case "elasticsearch":
		if c.Elasticsearch.IndexName == "" {
			return fmt.Errorf("%w: elasticsearch.index_name 不能为空", model.ErrInvalidConfig)
		}
	case "chromem":
		if c.VectorStore.Metric != "cosine" {
			return fmt.Errorf("%w: chromem 只支持 cosine 相似度", model.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: 未知的 vector_store.backend '%s'", model.ErrInvalidConfig, c.VectorStore.Backend)
	}
	if c.Upload.MaxSizeKB <= 0 {
		return fmt.Errorf("%w: upload.max_size_kb 必须大于 0", model.ErrInvalidConfig)
	}
	if c.Upload.Async && (c.Kafka.Brokers == "" || c.MinIO.Endpoint == "") {
		return fmt.Errorf("%w: 异步入库需要同时配置 kafka.brokers 和 minio.endpoint", model.ErrInvalidConfig)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("%w: search.top_k 必须大于 0", model.ErrInvalidConfig)
	}
	return nil
}

// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Canvas    CanvasConfig    `mapstructure:"canvas"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// AuthConfig 配置 ID token 的校验方式。
// 设置 DevSecret 时使用 HS256 开发模式，否则按 Firebase 项目校验 RS256 token。
type AuthConfig struct {
	FirebaseProjectID string `mapstructure:"firebase_project_id"`
	CertsURL          string `mapstructure:"certs_url"`
	DevSecret         string `mapstructure:"dev_secret"`
}

// StorageConfig 选择文档存储后端：firestore | redis | mysql | bolt | memory。
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Firestore FirestoreConfig `mapstructure:"firestore"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Bolt      BoltConfig      `mapstructure:"bolt"`
}

// FirestoreConfig 存储 Firestore 的配置。
type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BoltConfig 存储单机 BoltDB 文件的位置。
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// CryptoConfig 存储凭证加密密钥（base64 编码的 32 字节）。
type CryptoConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// CanvasConfig 存储 Canvas LMS 相关的配置。
type CanvasConfig struct {
	CurrentTermID    int           `mapstructure:"current_term_id"`
	RequestDelay     time.Duration `mapstructure:"request_delay"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	AnnouncementDays int           `mapstructure:"announcement_days"`
}

// OpenAIConfig 存储 OpenAI Responses API 的配置。
type OpenAIConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	ChatModel       string `mapstructure:"chat_model"`
	PlannerModel    string `mapstructure:"planner_model"`
	ReasoningEffort string `mapstructure:"reasoning_effort"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// AnthropicConfig 存储 Anthropic Messages API 的配置。
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// ChatConfig 控制聊天助手的工具调用循环。
type ChatConfig struct {
	MaxToolRounds           int  `mapstructure:"max_tool_rounds"`
	MaxContextTokens        int  `mapstructure:"max_context_tokens"`
	PersistToolMessages     bool `mapstructure:"persist_tool_messages"`
	MaxConcurrentModelCalls int  `mapstructure:"max_concurrent_model_calls"`
}

// PlannerConfig 控制 AI 学习计划的生成与缓存。
type PlannerConfig struct {
	ReasoningEffort string `mapstructure:"reasoning_effort"`
	UpcomingDays    int    `mapstructure:"upcoming_days"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时课程刷新任务在进程内执行。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时禁用对话导出。
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// TracingConfig 存储 OpenTelemetry 的配置。
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// setDefaults 为可选配置项设置默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.certs_url", "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com")
	v.SetDefault("storage.driver", "firestore")
	v.SetDefault("database.bolt.path", "./data/easy-canvas.bolt")
	v.SetDefault("canvas.current_term_id", 7109)
	v.SetDefault("canvas.request_delay", 200*time.Millisecond)
	v.SetDefault("canvas.request_timeout", 30*time.Second)
	v.SetDefault("canvas.announcement_days", 30)
	v.SetDefault("openai.base_url", "https://api.openai.com")
	v.SetDefault("openai.chat_model", "o4-mini-2025-04-16")
	v.SetDefault("openai.planner_model", "gpt-5-mini")
	v.SetDefault("openai.reasoning_effort", "low")
	v.SetDefault("openai.max_retries", 2)
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.model", "claude-3-5-sonnet-latest")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("chat.max_tool_rounds", 5)
	v.SetDefault("chat.max_context_tokens", 8000)
	v.SetDefault("chat.persist_tool_messages", false)
	v.SetDefault("chat.max_concurrent_model_calls", 8)
	v.SetDefault("planner.reasoning_effort", "medium")
	v.SetDefault("planner.upcoming_days", 30)
	v.SetDefault("kafka.topic", "course-refresh")
	v.SetDefault("kafka.group_id", "easy-canvas-go-consumer")
	v.SetDefault("minio.bucket_name", "chat-exports")
	v.SetDefault("minio.url_expiry", 15*time.Minute)
	v.SetDefault("tracing.service_name", "easy-canvas-go")
	v.SetDefault("tracing.sample_ratio", 0.1)
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量 EASYCANVAS_<SECTION>_<KEY> 可以覆盖文件中的同名配置。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取配置文件并返回解析后的 Config，不修改全局变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EASYCANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 forgemcpd 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Project   ProjectConfig   `json:"project"`
	Toolchain ToolchainConfig `json:"toolchain"`
	Storage   StorageConfig   `json:"storage"`
	Queue     QueueConfig     `json:"queue"`
	Logging   LoggingConfig   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
	// AuthToken 非空时启用 Bearer Token 校验。
	AuthToken string `json:"auth_token"`
}

// ProjectConfig 指定 Foundry 工程所在目录。
type ProjectConfig struct {
	// Root 是所有外部工具的工作目录，可被 PROJECT_ROOT 环境变量覆盖。
	Root string `json:"root"`
}

// ToolchainConfig 描述外部工具链的调用方式。
type ToolchainConfig struct {
	// DefinitionsPath 指向 YAML 格式的工具定义文件（可执行文件与默认参数）。
	DefinitionsPath string `json:"definitions_path"`
	// CommandTimeoutSeconds 限制单次一次性命令的执行时长。
	CommandTimeoutSeconds int `json:"command_timeout_seconds"`
	// SessionTimeoutSeconds 限制一次交互式会话的总时长。
	SessionTimeoutSeconds int `json:"session_timeout_seconds"`
	// PrivateKeyEnv 指定默认签名私钥所在的环境变量名。
	PrivateKeyEnv string `json:"private_key_env"`
}

// StorageConfig 统一描述调用记录持久化后端的连接信息。
type StorageConfig struct {
	InvocationStore InvocationStoreConfig `json:"invocation_store"`
}

// InvocationStoreConfig 提供内存与 MySQL 两种实现。
type InvocationStoreConfig struct {
	Driver  string `json:"driver"`
	DSN     string `json:"dsn"`
	Retries int    `json:"retries"`
}

// QueueConfig 描述异步调用队列的驱动选择。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LoggingConfig 控制日志输出行为。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置，便于直接在工程目录内启动。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	// 8545 留给 anvil 使用，API 服务缺省监听 8700。
	if c.Server.Address == "" {
		c.Server.Address = ":8700"
	}

	// PROJECT_ROOT 优先于配置文件，二者都缺省时使用当前目录。
	if root := os.Getenv("PROJECT_ROOT"); root != "" {
		c.Project.Root = root
	}
	if c.Project.Root == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.Project.Root = cwd
		} else {
			c.Project.Root = "."
		}
	}

	if c.Toolchain.CommandTimeoutSeconds <= 0 {
		c.Toolchain.CommandTimeoutSeconds = 300
	}
	if c.Toolchain.SessionTimeoutSeconds <= 0 {
		c.Toolchain.SessionTimeoutSeconds = 120
	}
	if c.Toolchain.PrivateKeyEnv == "" {
		c.Toolchain.PrivateKeyEnv = "PRIVATE_KEY"
	}
	if c.Toolchain.DefinitionsPath != "" && !filepath.IsAbs(c.Toolchain.DefinitionsPath) {
		c.Toolchain.DefinitionsPath = filepath.Join(baseDir, c.Toolchain.DefinitionsPath)
	}

	if c.Storage.InvocationStore.Driver == "" {
		c.Storage.InvocationStore.Driver = "memory"
	}
	if c.Storage.InvocationStore.Retries <= 0 {
		c.Storage.InvocationStore.Retries = 3
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Worker <= 0 {
		c.Queue.Worker = 4
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述 karanad 在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	NLU        NLUConfig        `json:"nlu"`
	Device     DeviceConfig     `json:"device"`
	Chain      ChainConfig      `json:"chain"`
	Catalog    CatalogConfig    `json:"catalog"`
	Policy     PolicyConfig     `json:"policy"`
	Planner    PlannerConfig    `json:"planner"`
	Jobs       JobsConfig       `json:"jobs"`
	Alerts     AlertsConfig     `json:"alerts"`
	Metrics    MetricsConfig    `json:"metrics"`
	Extensions ExtensionsConfig `json:"extensions"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LoggingConfig 控制应用日志与审计日志的输出方式。
type LoggingConfig struct {
	Level   string         `json:"level"`
	Format  string         `json:"format"`
	Outputs []string       `json:"outputs"`
	Audit   AuditLogConfig `json:"audit"`
}

// AuditLogConfig 描述审计日志文件及其轮转策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// NLUConfig 用于配置意图识别的调用方式。
type NLUConfig struct {
	Provider       string             `json:"provider"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	OpenAI         OpenAIConfig       `json:"openai"`
	Python         PythonBridgeConfig `json:"python_bridge"`
}

// Timeout 返回意图识别调用的超时时间。
func (c NLUConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAIConfig 描述通过 OpenAI 兼容接口识别意图所需的信息。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回 OpenAI 请求的超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PythonBridgeConfig 描述通过 Python 脚本完成意图识别时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable"`
	ScriptPath       string `json:"script_path"`
	WorkingDir       string `json:"working_dir"`
}

// DeviceConfig 描述设备状态快照的来源。
type DeviceConfig struct {
	SnapshotPath          string `json:"snapshot_path"`
	RefreshTimeoutSeconds int    `json:"refresh_timeout_seconds"`
}

// ChainConfig 包含访问 Karana 链节点所需的 RPC 地址。
type ChainConfig struct {
	Enabled       bool   `json:"enabled"`
	Definitions   string `json:"definitions"`
	DefaultChain  string `json:"default_chain"`
	RPCURL        string `json:"rpc_url"`
	WalletAddress string `json:"wallet_address"`
}

// CatalogConfig 描述应用目录的存储后端。
type CatalogConfig struct {
	Driver                 string `json:"driver"`
	Path                   string `json:"path"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// PolicyConfig 描述用户策略档案的存储后端。
type PolicyConfig struct {
	Driver   string `json:"driver"`
	Path     string `json:"path"`
	DSN      string `json:"dsn"`
	SeedPath string `json:"seed_path"`
}

// PlannerConfig 放置规划器在快照缺项时使用的名义值。
type PlannerConfig struct {
	AssumedStorageBudgetMB    int64   `json:"assumed_storage_budget_mb"`
	NominalBatteryCapacityMAh float64 `json:"nominal_battery_capacity_mah"`
}

// JobsConfig 控制规划任务的异步处理。
type JobsConfig struct {
	Queue      QueueConfig `json:"queue"`
	Workers    int         `json:"workers"`
	MaxRetries int         `json:"max_retries"`
}

// QueueConfig 描述任务队列的驱动选择。
type QueueConfig struct {
	Driver   string              `json:"driver"`
	Capacity int                 `json:"capacity"`
	Redis    RedisQueueConfig    `json:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// AlertsConfig 描述告警通知渠道。
type AlertsConfig struct {
	Enabled  bool               `json:"enabled"`
	Channels []string           `json:"channels"`
	Email    EmailAlertConfig   `json:"email"`
	DingTalk WebhookAlertConfig `json:"dingtalk"`
	Slack    WebhookAlertConfig `json:"slack"`
}

// EmailAlertConfig 描述 SMTP 告警通道。
type EmailAlertConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// WebhookAlertConfig 描述基于 Webhook 的告警通道。Channel 仅对 Slack 生效。
type WebhookAlertConfig struct {
	WebhookURL string `json:"webhook_url"`
	Secret     string `json:"secret"`
	Channel    string `json:"channel"`
}

// MetricsConfig 控制指标采集端点。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// ExtensionsConfig 控制上下文扩展的装载。
type ExtensionsConfig struct {
	Enabled bool     `json:"enabled"`
	Dir     string   `json:"dir"`
	Allowed []string `json:"allowed"`
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

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.Outputs) == 0 {
		c.Logging.Outputs = []string{"stdout"}
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
	}
	c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path)

	if c.NLU.Provider == "" {
		c.NLU.Provider = "none"
	}
	if c.NLU.TimeoutSeconds <= 0 {
		c.NLU.TimeoutSeconds = 15
	}
	if c.NLU.Python.PythonExecutable == "" {
		c.NLU.Python.PythonExecutable = "python3"
	}
	if c.NLU.Python.WorkingDir == "" {
		c.NLU.Python.WorkingDir = baseDir
	} else {
		c.NLU.Python.WorkingDir = resolvePath(baseDir, c.NLU.Python.WorkingDir)
	}

	if c.Device.RefreshTimeoutSeconds <= 0 {
		c.Device.RefreshTimeoutSeconds = 3
	}
	c.Device.SnapshotPath = resolvePath(baseDir, c.Device.SnapshotPath)

	c.Chain.Definitions = resolvePath(baseDir, c.Chain.Definitions)

	if c.Catalog.Driver == "" {
		c.Catalog.Driver = "static"
	}
	c.Catalog.Path = resolvePath(baseDir, c.Catalog.Path)

	if c.Policy.Driver == "" {
		c.Policy.Driver = "memory"
	}
	c.Policy.Path = resolvePath(baseDir, c.Policy.Path)
	c.Policy.SeedPath = resolvePath(baseDir, c.Policy.SeedPath)

	if c.Planner.AssumedStorageBudgetMB <= 0 {
		c.Planner.AssumedStorageBudgetMB = 1000
	}
	if c.Planner.NominalBatteryCapacityMAh <= 0 {
		c.Planner.NominalBatteryCapacityMAh = 4000
	}

	if c.Jobs.Queue.Driver == "" {
		c.Jobs.Queue.Driver = "memory"
	}
	if c.Jobs.Queue.Capacity <= 0 {
		c.Jobs.Queue.Capacity = 1024
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.MaxRetries <= 0 {
		c.Jobs.MaxRetries = 3
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9100"
	}

	c.Extensions.Dir = resolvePath(baseDir, c.Extensions.Dir)

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir)
	}
}

// resolvePath 将相对路径补全为基于配置文件目录的绝对路径。
func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"AgentPayroll/pkg/logger"
)

// 默认值与 Kite 测试网保持一致。
const (
	DefaultRPCURL             = "https://rpc-testnet.gokite.ai/"
	DefaultBundlerURL         = "https://bundler-service.staging.gokite.ai/rpc/"
	DefaultChainID      int64 = 2368
	DefaultPort               = "3000"
	DefaultCallTimeout        = 10
	DefaultConcurrency        = 8
	DefaultEnvironment        = "development"
	DefaultNativeSymbol       = "KITE"
)

// Config 描述了 payrolld 在启动阶段需要加载的全部配置。
type Config struct {
	Environment string          `json:"environment"`
	Server      ServerConfig    `json:"server"`
	Web3        Web3Config      `json:"web3"`
	Agents      AgentsConfig    `json:"agents"`
	Payroll     PayrollConfig   `json:"payroll"`
	Events      EventsConfig    `json:"events"`
	RateLimit   RateLimitConfig `json:"rate_limit"`
	LLM         LLMConfig       `json:"llm"`
	Log         logger.Config   `json:"log"`
}

// ServerConfig 控制 HTTP 服务的监听地址等参数。
type ServerConfig struct {
	Address        string   `json:"address"`
	MetricsAddress string   `json:"metrics_address"`
	StaticDir      string   `json:"static_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
	// TrustProxy 为 true 时按 X-Forwarded-For / X-Real-IP 识别客户端，
	// 只应在服务位于可信反向代理之后时开启。
	TrustProxy bool `json:"trust_proxy"`
	// ReadTimeoutSeconds 与 WriteTimeoutSeconds 为 0 时使用默认值。
	ReadTimeoutSeconds  int `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`
}

// Web3Config 包含访问区块链节点所需的参数。
type Web3Config struct {
	RPCURL       string `json:"rpc_url"`
	BundlerURL   string `json:"bundler_url"`
	ChainID      int64  `json:"chain_id"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
	Registry     string `json:"registry"`
	NativeSymbol string `json:"native_symbol"`
	// CallTimeoutSeconds 限制单次后端调用的耗时，超时按后端不可用处理。
	CallTimeoutSeconds int `json:"call_timeout_seconds"`
}

// CallTimeout 返回单次后端调用的超时时间。
func (w Web3Config) CallTimeout() time.Duration {
	return time.Duration(w.CallTimeoutSeconds) * time.Second
}

// AgentsConfig 保存三个 Agent 的凭证。推荐只通过环境变量注入。
type AgentsConfig struct {
	HRKey       string `json:"hr_key"`
	PayrollKey  string `json:"payroll_key"`
	EmployeeKey string `json:"employee_key"`
}

// PayrollConfig 控制一次发薪批次的执行方式。
type PayrollConfig struct {
	Concurrency     int          `json:"concurrency"`
	BootstrapGrants bool         `json:"bootstrap_grants"`
	Limits          LimitsConfig `json:"limits"`
}

// LimitsConfig 描述 HR 为 Payroll Agent 设置的消费限额。
type LimitsConfig struct {
	PerTransaction string `json:"per_transaction"`
	Daily          string `json:"daily"`
	Monthly        string `json:"monthly"`
	Currency       string `json:"currency"`
}

// EventsConfig 控制发薪事件的投递方式。
type EventsConfig struct {
	Driver   string            `json:"driver"`
	RabbitMQ RabbitMQConfig    `json:"rabbitmq"`
	Redis    EventsRedisConfig `json:"redis"`
}

// EventsRedisConfig 描述保存事件的 Redis 列表。
type EventsRedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
	MaxLen   int64  `json:"max_len"`
}

// RabbitMQConfig 描述事件交换机。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// RateLimitConfig 控制 API 的限流。Driver 为空表示关闭。
type RateLimitConfig struct {
	Driver            string      `json:"driver"`
	RequestsPerMinute int         `json:"requests_per_minute"`
	Burst             int         `json:"burst"`
	Redis             RedisConfig `json:"redis"`
}

// LLMConfig 配置 HR 薪资助手使用的 OpenAI 兼容接口。APIKey 为空时助手不可用。
type LLMConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// SalaryFile 是 JSON 薪资表，为空时使用演示数据。
	SalaryFile string `json:"salary_file"`
}

// RedisConfig 描述限流使用的 Redis 连接。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// Default 返回不依赖配置文件即可运行的配置，环境变量覆盖已应用。
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults("")
	return cfg
}

// Load 负责解析指定路径的 JSON 配置文件，路径为空时等价于 Default。
// 同目录或工作目录下的 .env 会先被加载，已存在的环境变量不会被覆盖。
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	if strings.TrimSpace(path) == "" {
		return Default(), nil
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

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互相依赖的字段。
func (c *Config) Validate() error {
	switch c.Events.Driver {
	case "memory", "none":
	case "rabbitmq":
		if strings.TrimSpace(c.Events.RabbitMQ.URL) == "" {
			return errors.New("events.rabbitmq.url 不能为空")
		}
	case "redis":
		if strings.TrimSpace(c.Events.Redis.Address) == "" {
			return errors.New("events.redis.address 不能为空")
		}
	default:
		return fmt.Errorf("不支持的事件驱动: %s", c.Events.Driver)
	}
	switch c.RateLimit.Driver {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.RateLimit.Redis.Address) == "" {
			return errors.New("rate_limit.redis.address 不能为空")
		}
	default:
		return fmt.Errorf("不支持的限流驱动: %s", c.RateLimit.Driver)
	}
	if c.Payroll.Concurrency < 1 {
		return errors.New("payroll.concurrency 必须大于 0")
	}
	return nil
}

// IsProduction reports whether the process runs with ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func loadDotEnv(path string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(strings.TrimSpace(path)); path != "" && dir != "." {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, file := range candidates {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

// applyEnv 使用环境变量覆盖文件中的值。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("HR_AGENT_KEY", &c.Agents.HRKey)
	set("PAYROLL_AGENT_KEY", &c.Agents.PayrollKey)
	set("EMPLOYEE_AGENT_KEY", &c.Agents.EmployeeKey)
	set("KITE_RPC_URL", &c.Web3.RPCURL)
	set("KITE_BUNDLER_RPC", &c.Web3.BundlerURL)
	set("ENVIRONMENT", &c.Environment)
	set("OPENROUTER_API_KEY", &c.LLM.APIKey)
	set("OPENROUTER_BASE_URL", &c.LLM.BaseURL)
	set("LLM_MODEL", &c.LLM.Model)

	if v, ok := lookup("KITE_CHAIN_ID"); ok {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			c.Web3.ChainID = id
		}
	}
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		c.Server.Address = ":" + strings.TrimPrefix(strings.TrimSpace(v), ":")
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.Server.Address == "" {
		c.Server.Address = ":" + DefaultPort
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 120
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	c.Server.StaticDir = resolve(baseDir, c.Server.StaticDir)

	if c.Web3.RPCURL == "" {
		c.Web3.RPCURL = DefaultRPCURL
	}
	if c.Web3.BundlerURL == "" {
		c.Web3.BundlerURL = DefaultBundlerURL
	}
	if c.Web3.ChainID == 0 {
		c.Web3.ChainID = DefaultChainID
	}
	if c.Web3.NativeSymbol == "" {
		c.Web3.NativeSymbol = DefaultNativeSymbol
	}
	if c.Web3.CallTimeoutSeconds <= 0 {
		c.Web3.CallTimeoutSeconds = DefaultCallTimeout
	}
	c.Web3.ChainConfig = resolve(baseDir, c.Web3.ChainConfig)

	if c.Payroll.Concurrency <= 0 {
		c.Payroll.Concurrency = DefaultConcurrency
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Events.RabbitMQ.Exchange == "" {
		c.Events.RabbitMQ.Exchange = "payroll.events"
	}
	if c.Events.RabbitMQ.RoutingKey == "" {
		c.Events.RabbitMQ.RoutingKey = "payroll.payment"
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 30
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.Redis.Prefix == "" {
		c.RateLimit.Redis.Prefix = "payroll:ratelimit"
	}

	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	c.LLM.SalaryFile = resolve(baseDir, c.LLM.SalaryFile)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Path != "" {
		c.Log.Audit.Path = resolve(baseDir, c.Log.Audit.Path)
	}
}

func resolve(baseDir, path string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 网关配置结构体
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Log          LogConfig          `mapstructure:"log"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Invocation   InvocationConfig   `mapstructure:"invocation"`
	Planner      PlannerConfig      `mapstructure:"planner"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Model        ModelConfig        `mapstructure:"model"`
	Adapters     AdaptersConfig     `mapstructure:"adapters"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	RateLimitRPS int    `mapstructure:"rate_limit_rps"` // <=0 不限流
	CORS         bool   `mapstructure:"cors"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// AuditConfig 审计存储配置
type AuditConfig struct {
	Store          string   `mapstructure:"store"`            // memory | postgres
	DSN            string   `mapstructure:"dsn"`              // store=postgres 时必填
	MaxParamLength int      `mapstructure:"max_param_length"` // 自由文本参数截断长度，<=0 默认 256
	SensitiveKeys  []string `mapstructure:"sensitive_keys"`   // 追加到内置敏感字段列表
}

// AuthConfig 角色→权限表；key 为角色名，value 为权限模式列表（支持 "pacs:*" 与 "*"）
type AuthConfig struct {
	Roles map[string][]string `mapstructure:"roles"`
}

// InvocationConfig 调用路径配置：超时、重试、熔断
type InvocationConfig struct {
	DefaultTimeout   string            `mapstructure:"default_timeout"`   // 如 "8s"，空则默认 8s
	ToolTimeouts     map[string]string `mapstructure:"tool_timeouts"`     // 按工具覆盖
	RetryMax         int               `mapstructure:"retry_max"`         // 幂等工具失败后最大重试次数（不含首次），<0 默认 2
	RetryBackoff     string            `mapstructure:"retry_backoff"`     // 首次退避，如 "200ms"，空则默认 200ms
	BreakerThreshold int               `mapstructure:"breaker_threshold"` // 连续失败次数阈值，<=0 默认 5
	BreakerCooldown  string            `mapstructure:"breaker_cooldown"`  // 熔断冷却窗口，如 "30s"，空则默认 30s
}

// PlannerConfig Call Planner 配置
type PlannerConfig struct {
	Timeout         string `mapstructure:"timeout"`           // 推理引擎调用超时，空则默认 30s
	MaxContextTurns int    `mapstructure:"max_context_turns"` // 会话上下文最大轮数，<=0 默认 10
	MaxStringLength int    `mapstructure:"max_string_length"` // 参数字符串最大长度，<=0 默认 512
}

// ConversationConfig 会话上下文存储配置
type ConversationConfig struct {
	Store string `mapstructure:"store"` // memory | redis
	Addr  string `mapstructure:"addr"`  // redis 地址，store=redis 时必填
	DB    int    `mapstructure:"db"`
	TTL   string `mapstructure:"ttl"` // 会话不活跃过期时间，如 "30m"
}

// ModelConfig 推理引擎配置（OpenAI 兼容本地端点）
type ModelConfig struct {
	Provider string `mapstructure:"provider"` // openai 兼容
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

// AdaptersConfig 各后端适配器配置；缺省（Endpoint/DSN 为空）则该适配器不注册
type AdaptersConfig struct {
	PACS           EndpointConfig  `mapstructure:"pacs"`
	Scheduling     EndpointConfig  `mapstructure:"scheduling"`
	Billing        EndpointConfig  `mapstructure:"billing"`
	Reporting      ReportingConfig `mapstructure:"reporting"`
	HealthInterval string          `mapstructure:"health_interval"` // 后台健康探测间隔，空则默认 30s
}

// EndpointConfig REST 后端配置；CredentialKey 指向 secrets store 中的凭据
type EndpointConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	CredentialKey string `mapstructure:"credential_key"`
	Timeout       string `mapstructure:"timeout"` // 后端 HTTP 超时，空则默认 10s
}

// ReportingConfig 报告存储适配器配置（Postgres）
type ReportingConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SecretsConfig 凭据存储配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // env | memory | vault
	Config   map[string]string `mapstructure:"config"`
}

// MonitoringConfig 观测配置
type MonitoringConfig struct {
	TracingEnable   bool   `mapstructure:"tracing_enable"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	ServiceName     string `mapstructure:"service_name"`
}

// Load 加载配置：路径参数 > MEDGATEWAY_CONFIG 环境变量 > ./config/config.yaml；
// 环境变量以 MEDGATEWAY_ 前缀覆盖（如 MEDGATEWAY_API_PORT）
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		path = os.Getenv("MEDGATEWAY_CONFIG")
	}
	if path == "" {
		path = filepath.Join("config", "config.yaml")
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("MEDGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件缺失时仅用默认值 + 环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("audit.store", "memory")
	v.SetDefault("audit.max_param_length", 256)
	v.SetDefault("invocation.default_timeout", "8s")
	v.SetDefault("invocation.retry_max", 2)
	v.SetDefault("invocation.retry_backoff", "200ms")
	v.SetDefault("invocation.breaker_threshold", 5)
	v.SetDefault("invocation.breaker_cooldown", "30s")
	v.SetDefault("planner.timeout", "30s")
	v.SetDefault("planner.max_context_turns", 10)
	v.SetDefault("planner.max_string_length", 512)
	v.SetDefault("conversation.store", "memory")
	v.SetDefault("conversation.ttl", "30m")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("adapters.health_interval", "30s")
}

// Duration 解析时长字符串；空或非法返回 fallback
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

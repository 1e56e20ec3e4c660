// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在 .env 文件中（YAML 中不存储任何密码）。
//	.env 文件同时被 Docker Compose（--env-file）、Go 应用（godotenv）、
//	systemd（EnvironmentFile=）共用，确保单一数据源。
//
// 配置路径确定策略：
//  1. --config 命令行参数（显式路径）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/contacts-api/
//     - dev/test → ./configs/
//
// 环境：
//   - 开发: APP_ENV=dev → configs/dev.yaml + .env.dev
//   - 测试: APP_ENV=test → configs/test.yaml + .env.test
//   - 生产: APP_ENV=prod → /etc/contacts-api/prod.yaml + systemd 注入凭据
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test" // 测试环境（集成测试 + E2E 共用）
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`   // HTTP 服务
	Database DatabaseConfig `yaml:"database"` // 数据库
	Redis    RedisConfig    `yaml:"redis"`    // Redis 会话缓存
	MinIO    MinIOConfig    `yaml:"minio"`    // MinIO 对象存储（头像）
	SMTP     SMTPConfig     `yaml:"smtp"`     // SMTP 邮件通知
	Auth     AuthConfig     `yaml:"auth"`     // 认证
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port string `yaml:"port"` // 监听端口
	URL  string `yaml:"url"`  // 对外可达地址，邮件里的确认/重置链接以此开头
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres", "sqlite", or "mongodb"（默认 postgres）
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从环境变量读取（DB_PASSWORD / MONGO_ROOT_PASSWORD）
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	URI      string `yaml:"uri"` // MongoDB 连接 URI（优先于 host/port，如 mongodb://localhost:27017）
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL，优先于 host/port/db
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`   // 例如 localhost:9000
	AccessKey string `yaml:"-"`          // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`          // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`    // 是否使用 HTTPS
	Bucket    string `yaml:"bucket"`     // 默认 bucket 名称
	PublicURL string `yaml:"public_url"` // 对外可见访问基址（反向代理场景覆盖 endpoint）
}

// SMTPConfig SMTP 邮件配置
//
// Host 为空时邮件发送进入禁用模式，注册/重置流程照常工作但不真正发信。
type SMTPConfig struct {
	Host       string `yaml:"host"`        // 服务器地址，例如 smtp.example.com:465
	From       string `yaml:"from"`        // 发件人，例如 "Contacts <noreply@example.com>"
	SkipVerify bool   `yaml:"skip_verify"` // 跳过 TLS 证书校验（自签证书的内网 SMTP）
	User       string `yaml:"-"`           // 只从 SMTP_USER 环境变量读取
	Password   string `yaml:"-"`           // 只从 SMTP_PASSWORD 环境变量读取
}

// AuthConfig 认证配置
// 注意：JWTSecret/AdminEmail/AdminPassword 只从环境变量读取，不存储在 YAML 中
type AuthConfig struct {
	JWTSecret      string `yaml:"-"`                // 只从 JWT_SECRET 环境变量读取
	AccessTokenTTL string `yaml:"access_token_ttl"` // 例如 "1h"
	ActionTokenTTL string `yaml:"action_token_ttl"` // 邮件确认/重置链接有效期，例如 "168h"
	AdminEmail     string `yaml:"-"`                // 只从 ADMIN_EMAIL 环境变量读取
	AdminPassword  string `yaml:"-"`                // 只从 ADMIN_PASSWORD 环境变量读取
}

// AccessTokenDuration 解析访问令牌有效期，缺省或非法时返回 1h
func (a AuthConfig) AccessTokenDuration() time.Duration {
	if d, err := time.ParseDuration(a.AccessTokenTTL); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// ActionTokenDuration 解析动作令牌有效期，缺省或非法时返回 168h
func (a AuthConfig) ActionTokenDuration() time.Duration {
	if d, err := time.ParseDuration(a.ActionTokenTTL); err == nil && d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string // "postgres", "sqlite", or "mongodb"
	DatabaseURL    string
	DatabaseDBName string // MongoDB 数据库名称
	RedisURL       string
	APIPort        string
	ServerURL      string      // 对外可达地址（邮件链接基址）
	MinIO          MinIOConfig // MinIO 对象存储配置
	SMTP           SMTPConfig  // SMTP 邮件配置
	Auth           AuthConfig  // 认证配置
	ConfigFilePath string      // 实际加载的配置文件路径
}

// yamlConfigInternal 内部包装，记录配置文件来源（不参与 YAML 序列化）
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}

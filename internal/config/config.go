package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//
// 1. 加载 .env.{env}（敏感信息，dev/test 专用）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖 YAML 值，构建最终配置
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yamlCfg := loadYAMLConfig(env)

	// 凭据只从环境变量读取
	yamlCfg.Database.Password = firstEnv("DB_PASSWORD", "MONGO_ROOT_PASSWORD")
	yamlCfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	yamlCfg.MinIO.AccessKey = os.Getenv("MINIO_ROOT_USER")
	yamlCfg.MinIO.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")
	yamlCfg.SMTP.User = os.Getenv("SMTP_USER")
	yamlCfg.SMTP.Password = os.Getenv("SMTP_PASSWORD")

	// DATABASE_URL / REDIS_URL 整体覆盖拼装结果
	databaseURL := getEnv("DATABASE_URL", buildDatabaseURL(yamlCfg.Database, yamlCfg.Database.Password))
	redisURL := getEnv("REDIS_URL", buildRedisURL(yamlCfg.Redis))

	apiPort := getEnv("API_PORT", yamlCfg.Server.Port)
	serverURL := getEnv("SERVER_URL", yamlCfg.Server.URL)
	if serverURL == "" {
		serverURL = "http://localhost:" + apiPort
	}

	return &Config{
		Env:            env,
		DatabaseDriver: detectDatabaseDriver(yamlCfg.Database.Driver, databaseURL),
		DatabaseURL:    databaseURL,
		DatabaseDBName: yamlCfg.Database.Name,
		RedisURL:       redisURL,
		APIPort:        apiPort,
		ServerURL:      serverURL,
		MinIO:          yamlCfg.MinIO,
		SMTP:           yamlCfg.SMTP,
		Auth: AuthConfig{
			JWTSecret:      os.Getenv("JWT_SECRET"),
			AccessTokenTTL: yamlCfg.Auth.AccessTokenTTL,
			ActionTokenTTL: yamlCfg.Auth.ActionTokenTTL,
			AdminEmail:     os.Getenv("ADMIN_EMAIL"),
			AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		},
		ConfigFilePath: yamlCfg.loadedFrom,
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	// 1. 初始化默认值
	cfg := &yamlConfigInternal{
		YAMLConfig: YAMLConfig{
			Server:   ServerConfig{Port: "8000"},
			Database: DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "contacts", Name: "contacts_db", SSLMode: "disable"},
			Redis:    RedisConfig{Host: "localhost", Port: 6379, DB: 0},
			MinIO:    MinIOConfig{Endpoint: "localhost:9000", Bucket: "contacts-api"},
			Auth:     AuthConfig{AccessTokenTTL: "1h", ActionTokenTTL: "168h"},
		},
	}

	// 2. 加载 {env}.yaml（环境特定配置，覆盖默认值）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range effectiveConfigPaths(env) {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, &cfg.YAMLConfig)
			cfg.loadedFrom = path
			break
		}
	}

	return cfg
}

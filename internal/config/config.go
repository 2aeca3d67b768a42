package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config 环境账本服务配置
type Config struct {
	FacilityID   string
	FacilityName string

	// Ledger 链配置
	Ledger struct {
		Backend    string // "leveldb" 或 "postgres"
		DataDir    string // leveldb 数据目录
		BlockSize  int    // 每块交易上限
		Difficulty int    // 工作量证明难度（前导零位数）
		MinedBy    string
	}

	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		Enabled  bool
	}

	MQTT struct {
		Broker   string // tcp://host:1883
		ClientID string
		Username string
		Password string
		Topic    string
		Enabled  bool
	}

	HTTP struct {
		Addr string
	}

	// Anchor 外部锚定端点（可选，为空则不启用）
	Anchor struct {
		Endpoint string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.FacilityID = getEnv("FACILITY_ID", "FAC-001")
	cfg.FacilityName = getEnv("FACILITY_NAME", "Environmental Monitoring Facility")

	cfg.Ledger.Backend = getEnv("LEDGER_BACKEND", "leveldb")
	cfg.Ledger.DataDir = getEnv("LEDGER_DATA_DIR", "./data/ledger")
	cfg.Ledger.BlockSize = getEnvInt("LEDGER_BLOCK_SIZE", 10)
	cfg.Ledger.Difficulty = getEnvInt("LEDGER_DIFFICULTY", 2)
	cfg.Ledger.MinedBy = getEnv("LEDGER_MINED_BY", "system")
	if cfg.Ledger.Backend != "leveldb" && cfg.Ledger.Backend != "postgres" {
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "envledger")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "true") == "true"

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "envledger-"+cfg.FacilityID)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "facility/+/sensor/+/reading")
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Anchor.Endpoint = getEnv("ANCHOR_ENDPOINT", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// DSN 返回 PostgreSQL 连接串
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Database, c.Database.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "FAC-001", cfg.FacilityID)
	assert.Equal(t, "leveldb", cfg.Ledger.Backend)
	assert.Equal(t, "./data/ledger", cfg.Ledger.DataDir)
	assert.Equal(t, 10, cfg.Ledger.BlockSize)
	assert.Equal(t, 2, cfg.Ledger.Difficulty)
	assert.Equal(t, "system", cfg.Ledger.MinedBy)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "envledger", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.True(t, cfg.Redis.Enabled)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "envledger-FAC-001", cfg.MQTT.ClientID)
	assert.Equal(t, "facility/+/sensor/+/reading", cfg.MQTT.Topic)
	assert.False(t, cfg.MQTT.Enabled)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "", cfg.Anchor.Endpoint)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("FACILITY_ID", "FAC-042")
	os.Setenv("LEDGER_BACKEND", "postgres")
	os.Setenv("LEDGER_BLOCK_SIZE", "25")
	os.Setenv("LEDGER_DIFFICULTY", "3")
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_PASSWORD", "test-password")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_ENABLED", "true")
	os.Setenv("ANCHOR_ENDPOINT", "https://anchor.example.com/v1/blocks")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "FAC-042", cfg.FacilityID)
	assert.Equal(t, "postgres", cfg.Ledger.Backend)
	assert.Equal(t, 25, cfg.Ledger.BlockSize)
	assert.Equal(t, 3, cfg.Ledger.Difficulty)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-db", cfg.Database.Database)

	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "https://anchor.example.com/v1/blocks", cfg.Anchor.Endpoint)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 清理环境变量
	os.Clearenv()
}

func TestLoad_InvalidBackend(t *testing.T) {
	os.Clearenv()
	os.Setenv("LEDGER_BACKEND", "cassandra")
	defer os.Clearenv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported ledger backend")
}

func TestDSN(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=envledger sslmode=disable",
		cfg.DSN())
}

func TestGetEnv(t *testing.T) {
	// 测试默认值
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	// 测试环境变量存在
	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	// 清理
	os.Unsetenv("TEST_KEY")
}

func TestGetEnvInt(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))

	os.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))

	// 非数字回退默认值
	os.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))

	os.Unsetenv("TEST_INT")
}

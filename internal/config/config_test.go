package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigFromFile 验证 YAML 配置文件能否被正确加载
func TestLoadConfigFromFile(t *testing.T) {
	yamlContent := `
server:
  address: ":9090"
mysql:
  host: "db.internal"
  port: 3307
  database: "assessment"
scheduler:
  sweep_interval: "2m"
evaluation:
  transcription_url: "http://eval.internal/transcribe"
  request_timeout: "60s"
report:
  hr_email: "hr@example.com"
  wait_attempts: 10
`
	tmpDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err, "无法创建临时目录")
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err, "无法写入临时配置文件")

	config, err := LoadConfig(configPath)
	require.NoError(t, err, "加载合法配置不应返回错误")
	require.NotNil(t, config, "配置对象不应为 nil")

	assert.Equal(t, ":9090", config.Server.Address)
	assert.Equal(t, "db.internal", config.MySQL.Host)
	assert.Equal(t, 3307, config.MySQL.Port)
	assert.Equal(t, "2m", config.Scheduler.SweepInterval)
	assert.Equal(t, "http://eval.internal/transcribe", config.Evaluation.TranscriptionURL)
	assert.Equal(t, "60s", config.Evaluation.RequestTimeout)
	assert.Equal(t, "hr@example.com", config.Report.HREmail)
	assert.Equal(t, 10, config.Report.WaitAttempts)
}

// TestLoadConfigAppliesDefaults 验证缺省字段会被填充默认值
func TestLoadConfigAppliesDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-defaults")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	// 只提供最小配置，其余依赖默认值
	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte("mysql:\n  host: \"localhost\"\n"), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":8080", config.Server.Address, "缺省时服务器地址应为 :8080")
	assert.Equal(t, "5m", config.Scheduler.SweepInterval, "缺省扫描周期应为 5m")
	assert.Equal(t, "1h", config.Scheduler.ReconcileInterval, "缺省对账周期应为 1h")
	assert.Equal(t, "120s", config.Evaluation.RequestTimeout)
	assert.Equal(t, 30, config.Report.WaitAttempts)
	assert.Equal(t, "2s", config.Report.WaitInterval)
}

// TestLoadConfigEnvOverride 验证环境变量能覆盖敏感配置
func TestLoadConfigEnvOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-env")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	yamlContent := `
mysql:
  password: "from-file"
`
	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("MYSQL_PASSWORD", "from-env")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.MySQL.Password, "环境变量应覆盖配置文件中的密码")
}

// TestLoadConfigMalformedYAML 验证非法 YAML 会返回解析错误
func TestLoadConfigMalformedYAML(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-bad")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte("mysql: [not, a, map"), 0644)
	require.NoError(t, err)

	_, err = LoadConfig(configPath)
	assert.Error(t, err, "非法 YAML 应返回错误")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, GetDuration("5m", time.Second))
	assert.Equal(t, time.Second, GetDuration("", time.Second), "空字符串应返回默认值")
	assert.Equal(t, time.Second, GetDuration("not-a-duration", time.Second), "非法时长应返回默认值")
}

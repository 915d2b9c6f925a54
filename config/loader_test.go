// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapEnv 用 map 模拟环境变量，避免测试间互相污染
func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sql", cfg.Storage.Driver)
	assert.Equal(t, "image-model-configs", cfg.Storage.Key)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "imagegen:", cfg.Redis.KeyPrefix)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "imagegen.db", cfg.Database.Name)

	assert.Equal(t, 2*time.Minute, cfg.HTTP.Timeout)
	assert.Equal(t, "imagegen", cfg.Metrics.Namespace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)

	// 厂商凭据默认全空
	assert.Equal(t, ProvidersConfig{}, cfg.Providers)
	assert.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithEnvLookup(mapEnv(nil)).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "imagegen.yaml")

	yamlContent := `
storage:
  driver: redis
  key: my-configs
redis:
  addr: redis.local:6380
providers:
  openai:
    api_key: sk-from-file
    base_url: https://proxy.local/v1
  siliconflow:
    api_key: sf-from-file
http:
  timeout: 45s
log:
  level: debug
  output_paths: [stdout, /tmp/imagegen.log]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnvLookup(mapEnv(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "my-configs", cfg.Storage.Key)
	assert.Equal(t, "redis.local:6380", cfg.Redis.Addr)
	assert.Equal(t, "sk-from-file", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "https://proxy.local/v1", cfg.Providers.OpenAI.BaseURL)
	assert.Equal(t, "sf-from-file", cfg.Providers.SiliconFlow.APIKey)
	assert.Equal(t, 45*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, []string{"stdout", "/tmp/imagegen.log"}, cfg.Log.OutputPaths)

	// 未出现在文件中的字段保留默认值
	assert.Equal(t, "imagegen:", cfg.Redis.KeyPrefix)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).
		WithEnvLookup(mapEnv(nil)).
		Load()
	require.NoError(t, err)
	assert.Equal(t, "sql", cfg.Storage.Driver)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).WithEnvLookup(mapEnv(nil)).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "imagegen.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("providers:\n  openai:\n    api_key: from-file\n"), 0o644))

	env := map[string]string{
		"IMAGEGEN_PROVIDERS_OPENAI_API_KEY":      "from-env",
		"IMAGEGEN_PROVIDERS_GEMINI_API_KEY":      "gem-key",
		"IMAGEGEN_PROVIDERS_GEMINI_BASE_URL":     "https://gemini-proxy.local",
		"IMAGEGEN_PROVIDERS_OPENROUTER_API_KEY":  "or-key",
		"IMAGEGEN_PROVIDERS_SILICONFLOW_API_KEY": "sf-key",
		"IMAGEGEN_STORAGE_DRIVER":                "memory",
		"IMAGEGEN_HTTP_TIMEOUT":                  "10s",
		"IMAGEGEN_METRICS_ENABLED":               "false",
		"IMAGEGEN_LOG_OUTPUT_PATHS":              "stdout, stderr",
		"IMAGEGEN_TELEMETRY_SAMPLE_RATE":         "0.5",
	}
	cfg, err := NewLoader().WithConfigPath(configPath).WithEnvLookup(mapEnv(env)).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "gem-key", cfg.Providers.Gemini.APIKey)
	assert.Equal(t, "https://gemini-proxy.local", cfg.Providers.Gemini.BaseURL)
	assert.Equal(t, "or-key", cfg.Providers.OpenRouter.APIKey)
	assert.Equal(t, "sf-key", cfg.Providers.SiliconFlow.APIKey)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"stdout", "stderr"}, cfg.Log.OutputPaths)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	_, err := NewLoader().WithEnvLookup(mapEnv(map[string]string{"IMAGEGEN_HTTP_TIMEOUT": "soon"})).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAGEGEN_HTTP_TIMEOUT")
}

func TestLoader_ArkLegacyFallback(t *testing.T) {
	env := map[string]string{
		"ARK_API_KEY":  " ark-key ",
		"ARK_BASE_URL": "https://ark.local/api/v3",
	}
	cfg, err := NewLoader().WithEnvLookup(mapEnv(env)).Load()
	require.NoError(t, err)
	assert.Equal(t, "ark-key", cfg.Providers.Seedream.APIKey)
	assert.Equal(t, "https://ark.local/api/v3", cfg.Providers.Seedream.BaseURL)

	// 新变量优先
	env["IMAGEGEN_PROVIDERS_SEEDREAM_API_KEY"] = "new-key"
	cfg, err = NewLoader().WithEnvLookup(mapEnv(env)).Load()
	require.NoError(t, err)
	assert.Equal(t, "new-key", cfg.Providers.Seedream.APIKey)
}

func TestLoader_CustomPrefix(t *testing.T) {
	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		WithEnvLookup(mapEnv(map[string]string{"MYAPP_STORAGE_KEY": "custom"})).
		Load()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Storage.Key)
}

func TestLoader_WithValidator(t *testing.T) {
	env := mapEnv(map[string]string{"IMAGEGEN_STORAGE_DRIVER": "etcd"})
	_, err := NewLoader().WithEnvLookup(env).WithValidator(func(c *Config) error { return c.Validate() }).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage driver "etcd"`)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults ok", mutate: func(*Config) {}},
		{name: "empty key", mutate: func(c *Config) { c.Storage.Key = " " }, wantErr: "storage key"},
		{name: "bad db driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: "unsupported database driver"},
		{name: "redis without addr", mutate: func(c *Config) { c.Storage.Driver = "redis"; c.Redis.Addr = "" }, wantErr: "redis addr"},
		{name: "sample rate", mutate: func(c *Config) { c.Telemetry.SampleRate = 2 }, wantErr: "sample_rate"},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTP.Timeout = -time.Second }, wantErr: "http timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProvidersConfig_ByID(t *testing.T) {
	p := ProvidersConfig{Seedream: ProviderConfig{APIKey: "ark"}}
	assert.Equal(t, "ark", p.ByID("seedream").APIKey)
	assert.Equal(t, ProviderConfig{}, p.ByID("unknown"))
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "u:p@tcp(db:3306)/n?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "/tmp/x.db"}
	assert.Equal(t, "/tmp/x.db", lite.DSN())
}

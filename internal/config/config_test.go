package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.App.Port)
	assert.Equal(t, "models/animal_faces.onnx", cfg.Model.ModelPath)
	assert.Equal(t, "models/class_names.txt", cfg.Model.LabelsPath)
	assert.Equal(t, 224, cfg.Model.ImageSize)
	assert.Equal(t, int64(89_478_485), cfg.Model.MaxPixels)
	assert.Equal(t, "file", cfg.Upload.FormField)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.MySQL.Enabled)
	assert.False(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
}

func TestLoadFile_TomlThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 9090

[model]
model_path = "/srv/model.onnx"
layout = "nchw"
sessions = 4

[redis]
enabled = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("MODEL_PATH", "/override/model.onnx")
	t.Setenv("UPLOAD_LEGACY_ERROR_STATUS", "true")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTPAddr())
	assert.Equal(t, "/override/model.onnx", cfg.Model.ModelPath)
	assert.Equal(t, "nchw", cfg.Model.Layout)
	assert.Equal(t, 4, cfg.Model.Sessions)
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Upload.LegacyErrorStatus)
	// untouched sections keep defaults
	assert.Equal(t, "models/class_names.txt", cfg.Model.LabelsPath)
}

func TestLoadFile_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("APP_PORT", "not-a-number")
	t.Setenv("REDIS_ENABLED", "maybe")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.App.Port)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Model.Layout = "hwcn"
	cfg.Model.Sessions = 0
	cfg.App.Port = 70000
	cfg.Model.MaxPixels = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.layout")
	assert.Contains(t, err.Error(), "model.sessions")
	assert.Contains(t, err.Error(), "app.port")
	assert.Contains(t, err.Error(), "model.max_pixels")
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.Password = "secret"
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/animalfaces?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
}

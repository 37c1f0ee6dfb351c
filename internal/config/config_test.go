package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Listen)
	assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, filepath.Join("storage", "references"), cfg.Storage.ReferencesDir())
	assert.Equal(t, filepath.Join("storage", "outputs"), cfg.Storage.OutputsDir())
	assert.Equal(t, "ffmpeg", cfg.Transcoder.Path)
	assert.Equal(t, ".venv/bin/python", cfg.Model.Command)
	assert.Equal(t, []string{"scripts/xtts_generate.py"}, cfg.Model.Args)
	assert.Equal(t, "en", cfg.Model.DefaultLanguage)
	assert.False(t, cfg.Mirror.Enabled())
	assert.Equal(t, int64(50<<20), cfg.Limits.MaxUploadBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOX_LISTEN", "127.0.0.1:9090")
	t.Setenv("VOX_STORAGE_ROOT", "/srv/voxclone")
	t.Setenv("VOX_OUTPUTS_DIR", "/var/lib/voxclone/out")
	t.Setenv("VOX_TRANSCODER", "/usr/bin/ffmpeg")
	t.Setenv("XTTS_PYTHON", "/opt/xtts/bin/python")
	t.Setenv("VOX_MODEL_ARGS", "scripts/xtts_generate.py --cpu")
	t.Setenv("VOX_MIRROR_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("VOX_MAX_TEXT_LENGTH", "5000")
	t.Setenv("VOX_WRITE_TIMEOUT", "3m")
	t.Setenv("VOX_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, 3*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, filepath.Join("/srv/voxclone", "references"), cfg.Storage.ReferencesDir())
	assert.Equal(t, "/var/lib/voxclone/out", cfg.Storage.OutputsDir())
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Transcoder.Path)
	assert.Equal(t, "/opt/xtts/bin/python", cfg.Model.Command)
	assert.Equal(t, []string{"scripts/xtts_generate.py", "--cpu"}, cfg.Model.Args)
	assert.True(t, cfg.Mirror.Enabled())
	assert.Equal(t, 5000, cfg.Limits.MaxTextLength)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestModelCommandTakesPrecedenceOverXTTSPython(t *testing.T) {
	t.Setenv("XTTS_PYTHON", "/opt/xtts/bin/python")
	t.Setenv("VOX_MODEL_COMMAND", "/usr/local/bin/xtts")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/xtts", cfg.Model.Command)
}

func TestOverridesMap(t *testing.T) {
	cfg, err := LoadWithDefaults(map[string]interface{}{
		"storage": map[string]interface{}{"root": "/tmp/vox"},
		"limits":  map[string]interface{}{"max_text_length": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/tmp/vox", "references"), cfg.Storage.ReferencesDir())
	assert.Equal(t, 10, cfg.Limits.MaxTextLength)
	assert.Equal(t, "en", cfg.Model.DefaultLanguage)
}

func TestServerClientURL(t *testing.T) {
	cases := []struct {
		server ServerConfig
		want   string
	}{
		{ServerConfig{Listen: ":8080"}, "http://127.0.0.1:8080"},
		{ServerConfig{Listen: "0.0.0.0:9000"}, "http://127.0.0.1:9000"},
		{ServerConfig{Listen: "[::]:9000"}, "http://127.0.0.1:9000"},
		{ServerConfig{Listen: "10.0.0.5:8080"}, "http://10.0.0.5:8080"},
		{ServerConfig{Listen: ":8080", URL: "https://vox.example.com/"}, "https://vox.example.com"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.server.ClientURL(), tc.server.Listen)
	}
}

func TestClientSettingsFromEnv(t *testing.T) {
	t.Setenv("VOX_LISTEN", ":7070")
	t.Setenv("VOX_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7070", cfg.Server.ClientURL())
	assert.Equal(t, "secret", cfg.Auth.APIKey)

	t.Setenv("VOX_SERVER_URL", "http://tts.internal:8080")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "http://tts.internal:8080", cfg.Server.ClientURL())
}

func TestEnvVarsCoverEveryBinding(t *testing.T) {
	vars := EnvVars()

	assert.Len(t, vars, len(envBindings))
	assert.Equal(t, []string{"VOX_MODEL_COMMAND", "XTTS_PYTHON"}, vars["model.command"])
	assert.Equal(t, []string{"VOX_API_KEY"}, vars["auth.api_key"])
	assert.Equal(t, []string{"VOX_SERVER_URL"}, vars["server.url"])
	for key, names := range vars {
		assert.NotEmpty(t, names, key)
	}
}

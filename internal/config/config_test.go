package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// when
	cfg, err := Load(map[string]string{})

	// then
	r.NoError(err)
	a.Equal("http://localhost:5000", cfg.BackendURL)
	a.Equal(":8080", cfg.ListenAddr)
	a.Equal(".", cfg.DownloadDir)
	a.Empty(cfg.InputDirs)
	a.Equal("info", cfg.LogLevel)
	a.False(cfg.LogJSON)
	a.False(cfg.HistoryEnabled())
	a.False(cfg.LoginRequired())
}

func TestLoad_Overrides(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	cfg, err := Load(map[string]string{
		"BENPDF_BACKEND_URL":        "https://tools.example.com/",
		"BENPDF_LISTEN_ADDR":        "127.0.0.1:9000",
		"BENPDF_DOWNLOAD_DIR":       "/tmp/out",
		"BENPDF_INPUT_DIRS":         "/home/me/pics, /data ,",
		"BENPDF_TOOLS_FILE":         "/etc/benpdf/tools.yaml",
		"BENPDF_HISTORY_DB":         "/var/lib/benpdf/history.db",
		"BENPDF_DASHBOARD_PASSWORD": "secret",
		"BENPDF_LOG_LEVEL":          "DEBUG",
		"BENPDF_LOG_JSON":           "true",
	})

	r.NoError(err)
	a.Equal("https://tools.example.com", cfg.BackendURL)
	a.Equal("127.0.0.1:9000", cfg.ListenAddr)
	a.Equal("/tmp/out", cfg.DownloadDir)
	a.Equal([]string{"/home/me/pics", "/data"}, cfg.InputDirs)
	a.Equal("/etc/benpdf/tools.yaml", cfg.ToolsFile)
	a.True(cfg.HistoryEnabled())
	a.True(cfg.LoginRequired())
	a.Equal("debug", cfg.LogLevel)
	a.True(cfg.LogJSON)
}

func TestLoad_InvalidBackendURL(t *testing.T) {
	for _, u := range []string{"localhost:5000", "ftp://host", "http://"} {
		_, err := Load(map[string]string{"BENPDF_BACKEND_URL": u})
		require.Error(t, err, u)
		assert.Contains(t, err.Error(), "BENPDF_BACKEND_URL")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	_, err := Load(map[string]string{"BENPDF_LOG_LEVEL": "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BENPDF_LOG_LEVEL")
}

func TestLoad_InvalidLogJSON(t *testing.T) {
	_, err := Load(map[string]string{"BENPDF_LOG_JSON": "maybe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a boolean")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BENPDF_BACKEND_URL", "http://backend:5000")
	t.Setenv("BENPDF_HISTORY_DB", "history.db")

	cfg, err := LoadFromEnv()

	require.NoError(t, err)
	assert.Equal(t, "http://backend:5000", cfg.BackendURL)
	assert.Equal(t, "history.db", cfg.HistoryDB)
}

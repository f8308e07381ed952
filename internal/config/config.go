package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Config struct {
	BackendURL        string
	ListenAddr        string
	DownloadDir       string
	InputDirs         []string
	ToolsFile         string
	HistoryDB         string
	DashboardPassword string
	LogLevel          string
	LogJSON           bool
}

var envKeys = []string{
	"BENPDF_BACKEND_URL",
	"BENPDF_LISTEN_ADDR",
	"BENPDF_DOWNLOAD_DIR",
	"BENPDF_INPUT_DIRS",
	"BENPDF_TOOLS_FILE",
	"BENPDF_HISTORY_DB",
	"BENPDF_DASHBOARD_PASSWORD",
	"BENPDF_LOG_LEVEL",
	"BENPDF_LOG_JSON",
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load reads config from env map. For production use LoadFromEnv.
func Load(env map[string]string) (*Config, error) {
	backendURL := strings.TrimRight(env["BENPDF_BACKEND_URL"], "/")
	if backendURL == "" {
		backendURL = "http://localhost:5000"
	}
	u, err := url.Parse(backendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("invalid BENPDF_BACKEND_URL %q: must be an http(s) URL", backendURL)
	}

	listenAddr := env["BENPDF_LISTEN_ADDR"]
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	downloadDir := env["BENPDF_DOWNLOAD_DIR"]
	if downloadDir == "" {
		downloadDir = "."
	}

	var inputDirs []string
	if s := env["BENPDF_INPUT_DIRS"]; s != "" {
		inputDirs = splitAndTrim(s)
	}

	logLevel := strings.ToLower(env["BENPDF_LOG_LEVEL"])
	if logLevel == "" {
		logLevel = "info"
	}
	if !logLevels[logLevel] {
		return nil, errors.Errorf("invalid BENPDF_LOG_LEVEL %q: must be debug, info, warn or error", logLevel)
	}

	logJSON := false
	if s := env["BENPDF_LOG_JSON"]; s != "" {
		logJSON, err = strconv.ParseBool(s)
		if err != nil {
			return nil, errors.Errorf("invalid BENPDF_LOG_JSON %q: must be a boolean", s)
		}
	}

	return &Config{
		BackendURL:        backendURL,
		ListenAddr:        listenAddr,
		DownloadDir:       downloadDir,
		InputDirs:         inputDirs,
		ToolsFile:         env["BENPDF_TOOLS_FILE"],
		HistoryDB:         env["BENPDF_HISTORY_DB"],
		DashboardPassword: env["BENPDF_DASHBOARD_PASSWORD"],
		LogLevel:          logLevel,
		LogJSON:           logJSON,
	}, nil
}

// LoadFromEnv loads config from os environment variables.
func LoadFromEnv() (*Config, error) {
	env := make(map[string]string, len(envKeys))
	for _, k := range envKeys {
		env[k] = os.Getenv(k)
	}
	return Load(env)
}

// HistoryEnabled reports whether submissions are journaled.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != ""
}

// LoginRequired reports whether the dashboard is password protected.
func (c *Config) LoginRequired() bool {
	return c.DashboardPassword != ""
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package config loads client configuration from TOML files and
// CHORUS_* environment variables, with development defaults.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

var configDir string
var configFilePath string

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "chorus"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/chorus
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chorus"), nil
}

// Init initializes the configuration. An empty configPath uses the
// platform default location; a missing file falls back to defaults.
func Init(configPath string) error {
	var err error
	if configPath != "" {
		configDir = filepath.Dir(configPath)
		configFilePath = configPath
	} else {
		configDir, err = getConfigDir()
		if err != nil {
			return err
		}
		configFilePath = filepath.Join(configDir, "config.toml")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	viper.SetConfigType("toml")
	setDefaults()

	// Environment overrides: CHORUS_API_BASE_URL etc.
	viper.SetEnvPrefix("chorus")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigFile(configFilePath)
	_ = viper.ReadInConfig()

	return nil
}

func setDefaults() {
	// Development defaults
	viper.SetDefault("api.base_url", "http://localhost:8686")
	viper.SetDefault("api.timeout", 30)

	viper.SetDefault("socket.host", "localhost")
	viper.SetDefault("socket.port", 8686)
	viper.SetDefault("socket.path", "/api/v1/ws")
	viper.SetDefault("socket.use_tls", false)
	viper.SetDefault("socket.connect_timeout_ms", 15000)
	viper.SetDefault("socket.heartbeat_interval_ms", 30000)
	viper.SetDefault("socket.reconnect_base_delay_ms", 2000)
	viper.SetDefault("socket.reconnect_max_delay_ms", 30000)
	viper.SetDefault("socket.max_reconnect_attempts", -1)

	viper.SetDefault("realtime.typing_timeout_ms", 2000)
	viper.SetDefault("realtime.backfill_limit", 50)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
}

// GetString returns a string configuration value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool configuration value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set sets a configuration value in memory (not written to disk)
func Set(key string, value interface{}) {
	viper.Set(key, value)
}

// Save writes the current configuration to the config file
func Save() error {
	return viper.WriteConfigAs(configFilePath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (AGORA_API_BASE_URL, ...)
const EnvPrefix = "AGORA"

var configDir string
var configFilePath string

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// Windows: %LOCALAPPDATA%\agora\cli
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
		return filepath.Join(appData, "agora", "cli"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/agora/cli
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "agora", "cli"), nil
}

// getSystemConfigPaths returns platform-specific system config paths
func getSystemConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(os.Getenv("ProgramFiles"), "Agora", "cli", "config.toml")}
	}

	return []string{
		"/etc/agora/cli/config.toml",
		"/usr/local/etc/agora/cli/config.toml",
	}
}

// Init initializes the configuration.
//
// Precedence, lowest first: defaults, system config, user config, .env file,
// process environment (AGORA_*).
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

	// .env is optional; existing environment variables win over it.
	_ = godotenv.Load()

	viper.Reset()
	viper.SetConfigType("toml")
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	for _, sysConfigPath := range getSystemConfigPaths() {
		if _, err := os.Stat(sysConfigPath); err == nil {
			viper.SetConfigFile(sysConfigPath)
			_ = viper.MergeInConfig()
			break
		}
	}

	viper.SetConfigFile(configFilePath)
	_ = viper.MergeInConfig()

	return nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:8787")
	viper.SetDefault("api.timeout", 30)

	viper.SetDefault("ws.url", "ws://localhost:8788/ws")
	viper.SetDefault("ws.connect_timeout_ms", 15000)
	viper.SetDefault("ws.heartbeat_interval_ms", 30000)
	viper.SetDefault("ws.reconnect_base_delay_ms", 2000)
	viper.SetDefault("ws.reconnect_max_delay_ms", 30000)
	viper.SetDefault("ws.max_reconnect_attempts", -1)

	viper.SetDefault("user.id", "")
	viper.SetDefault("user.token", "")
	viper.SetDefault("user.name", "")

	viper.SetDefault("call.ice_servers", []string{"stun:stun.l.google.com:19302"})
	viper.SetDefault("call.video_max_width", 640)
	viper.SetDefault("call.video_max_height", 480)

	viper.SetDefault("feed.page_size", 20)

	viper.SetDefault("relay.addr", ":8788")
	viper.SetDefault("relay.jwt_secret", "")
	viper.SetDefault("relay.redis_url", "")
	viper.SetDefault("relay.allowed_origins", []string{"*"})
	viper.SetDefault("relay.rate_limit", 20)

	viper.SetDefault("output.format", "text")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", filepath.Join(configDir, "agora-cli.log"))
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetString returns a string configuration value
func GetString(key string) string {
	value := viper.GetString(key)
	if key == "log.file" {
		return expandPath(value)
	}
	return value
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool configuration value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStringSlice returns a list configuration value. Environment overrides
// are comma separated.
func GetStringSlice(key string) []string {
	raw, ok := viper.Get(key).(string)
	if !ok {
		return viper.GetStringSlice(key)
	}

	var values []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

// Set overrides a value for the lifetime of the process without touching
// the config file.
func Set(key string, value interface{}) {
	viper.Set(key, value)
}

// SetString sets a string configuration value and persists it
func SetString(key string, value string) error {
	viper.Set(key, value)
	return viper.WriteConfigAs(configFilePath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

// GetConfigFilePath returns the user config file path
func GetConfigFilePath() string {
	return configFilePath
}

// GetCredentialsPath returns the path of the stored login
func GetCredentialsPath() string {
	return filepath.Join(configDir, "credentials.json")
}

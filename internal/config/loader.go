package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/logger"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".instsync.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/instsync"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. INSTSYNC_PUSH_URL.
	EnvPrefix = "INSTSYNC"
	// EnvFile is loaded from the working directory before reading the environment.
	EnvFile = ".env"
)

// Load reads config from path, applying defaults and INSTSYNC_* environment
// overrides. An empty path means defaults plus environment only.
func Load(path string) (*Config, error) {
	loadEnvFile(EnvFile)

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Run 'instsync init' to create a config file, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .instsync.yaml in current directory
// 3. .instsync.yaml in parent directories (stops at git root or home)
// 4. ~/.config/instsync/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if home != "" && parent == home {
			// Don't go above home directory
			break
		}
		dir = parent

		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Stop at git root
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
	}

	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config, falling back to defaults (plus
// environment overrides) when no file exists.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		source := "your environment"
		if path != "" {
			source = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax and duration values in "+source)
	}

	cfg.Push.Transport = strings.ToLower(strings.TrimSpace(cfg.Push.Transport))
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("push.transport", d.Push.Transport)
	v.SetDefault("push.url", d.Push.URL)
	v.SetDefault("push.subject_prefix", d.Push.SubjectPrefix)
	v.SetDefault("push.dial_timeout", d.Push.DialTimeout.String())
	v.SetDefault("push.ack_timeout", d.Push.AckTimeout.String())
	v.SetDefault("reconnect.base_delay", d.Reconnect.BaseDelay.String())
	v.SetDefault("reconnect.max_attempts", d.Reconnect.MaxAttempts)
	v.SetDefault("reconnect.manual_delay", d.Reconnect.ManualDelay.String())
	v.SetDefault("pull.url", d.Pull.URL)
	v.SetDefault("pull.path", d.Pull.Path)
	v.SetDefault("pull.interval", d.Pull.Interval.String())
	v.SetDefault("pull.timeout", d.Pull.Timeout.String())
	v.SetDefault("log.file", d.Log.File)
}

// loadEnvFile loads KEY=value pairs without overriding variables that are
// already set.
func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.Default().Warn("ignoring %s: %v", path, err)
	}
}

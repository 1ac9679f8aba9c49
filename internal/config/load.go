package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/msageha/autopilot/internal/model"
)

// EnvPrefix is the prefix for environment overrides, e.g. AUTOPILOT_AUTOMATION_LEVEL.
const EnvPrefix = "AUTOPILOT"

// newViperInstance creates a viper instance with env overrides and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers scalar defaults. Rules and workflow overrides are
// not registered here: list defaults would be merged element-wise into the
// user's list, so they are filled in after decoding instead.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("automation_level", string(d.AutomationLevel))
	v.SetDefault("max_concurrent_commands", d.MaxConcurrentCommands)
	v.SetDefault("max_cpu_usage", d.MaxCPUUsage)
	v.SetDefault("enable_logging", d.EnableLogging)

	v.SetDefault("notifications.on_success", d.Notifications.OnSuccess)
	v.SetDefault("notifications.on_error", d.Notifications.OnError)
	v.SetDefault("notifications.on_hint", d.Notifications.OnHint)

	v.SetDefault("watcher.stability_delay", d.Watcher.StabilityDelay.String())

	v.SetDefault("scheduler.tick_interval", d.Scheduler.TickInterval.String())
	v.SetDefault("scheduler.status_interval", d.Scheduler.StatusInterval.String())
	v.SetDefault("scheduler.command_timeout", d.Scheduler.CommandTimeout.String())
	v.SetDefault("scheduler.workflow_debounce", d.Scheduler.WorkflowDebounce.String())

	v.SetDefault("workflows.enabled", d.Workflows.Enabled)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
}

// viperDecoderOption decodes "500ms" style strings and bare integers
// (milliseconds) into time.Duration.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			millisecondsHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}

func millisecondsHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Millisecond, nil
		case int64:
			return time.Duration(n) * time.Millisecond, nil
		case uint64:
			return time.Duration(n) * time.Millisecond, nil
		case float64:
			return time.Duration(n * float64(time.Millisecond)), nil
		default:
			return data, nil
		}
	}
}

// Load reads the config file at path, applies AUTOPILOT_* environment
// overrides and validates the result. A missing file is not an error: the
// defaults (plus environment) are returned.
func Load(path string) (model.Config, error) {
	v := newViperInstance()
	if path != "" && fileExists(path) {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return model.Config{}, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
		}
	}

	var cfg model.Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return model.Config{}, fmt.Errorf("%w: decode: %w", ErrInvalidConfig, err)
	}
	applyListDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that never fails: any problem is logged and the
// built-in defaults are returned instead.
func LoadOrDefault(path string, logger zerolog.Logger) model.Config {
	logger = logger.With().Str("component", "config").Logger()
	if path != "" && !fileExists(path) {
		logger.Info().Str("path", path).Msg("no config file, using defaults")
	}
	cfg, err := Load(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("configuration rejected, using defaults")
		return Default()
	}
	logger.Debug().
		Str("automation_level", string(cfg.AutomationLevel)).
		Int("rules", len(cfg.Rules)).
		Dur("tick_interval", cfg.Scheduler.TickInterval).
		Msg("configuration loaded")
	return cfg
}

func applyListDefaults(cfg *model.Config) {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	if len(cfg.Watcher.Patterns) == 0 {
		cfg.Watcher.Patterns = append([]string(nil), DefaultWatchPatterns...)
	}
	if cfg.Watcher.Ignore == nil {
		cfg.Watcher.Ignore = append([]string(nil), DefaultIgnorePatterns...)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

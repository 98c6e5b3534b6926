// Package config 提供了统一的配置加载与管理能力.
// 加载顺序: 默认值 < TOML 配置文件 < RANGEMAX_ 前缀环境变量 < 命令行参数.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wyfcoding/rangemax/logging"
)

// EnvPrefix 环境变量前缀，例如 RANGEMAX_LOG_LEVEL.
const EnvPrefix = "RANGEMAX"

// Config 全局顶级配置结构.
type Config struct {
	Service string        `mapstructure:"service" toml:"service" validate:"required"`
	Version string        `mapstructure:"version" toml:"version"`
	Log     LogConfig     `mapstructure:"log"     toml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" toml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" toml:"tracing"`
	Tree    TreeConfig    `mapstructure:"tree"    toml:"tree"`
	Input   InputConfig   `mapstructure:"input"   toml:"input"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"oneof=debug info warn error"` // 日志级别。
	Format     string `mapstructure:"format"      toml:"format"      validate:"oneof=json text"`             // 日志格式。
	File       string `mapstructure:"file"        toml:"file"`                                               // 日志文件路径。
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"    validate:"min=0"`                       // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" validate:"min=0"`                       // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"     validate:"min=0"`                       // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"`                                           // 是否启用压缩。
}

// MetricsConfig 定义 Prometheus 指标暴露参数.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Port    string `mapstructure:"port"    toml:"port"    validate:"omitempty,numeric"`
	Path    string `mapstructure:"path"    toml:"path"    validate:"startswith=/"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"min=0,max=1"`
}

// TreeConfig 线段树构建参数.
type TreeConfig struct {
	FirstIndex   int  `mapstructure:"first_index"   toml:"first_index"`
	ShortCircuit bool `mapstructure:"short_circuit" toml:"short_circuit"`
}

// InputConfig 输入流的规模上限，0 表示不限制.
type InputConfig struct {
	MaxElements   int `mapstructure:"max_elements"   toml:"max_elements"   validate:"min=0"`
	MaxOperations int `mapstructure:"max_operations" toml:"max_operations" validate:"min=0"`
}

var (
	mu        sync.Mutex
	vInstance = viper.New()
	onReload  []func(*Config)
	validate  = validator.New()
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

// setDefaults 注册全部键的默认值，环境变量覆盖依赖于键已被 viper 知晓.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service", "rangemax")
	v.SetDefault("version", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", "9090")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "rangemax")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tree.first_index", 1)
	v.SetDefault("tree.short_circuit", true)
	v.SetDefault("input.max_elements", 0)
	v.SetDefault("input.max_operations", 0)
}

// Load 读取配置. path 为空时只使用默认值、环境变量与命令行参数.
// flags 中的参数按 "段-键" 命名绑定，例如 "log-max-size" 对应 "log.max_size"，
// 不对应任何配置键的参数被忽略.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(strings.Replace(f.Name, "-", ".", 1), "-", "_")
			if !isKnownKey(v, key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags error: %w", bindErr)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	conf, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	vInstance = v
	mu.Unlock()

	return conf, nil
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func decode(v *viper.Viper) (*Config, error) {
	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := validate.Struct(conf); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return conf, nil
}

// Watch 监听配置文件变化. 重新加载并通过校验后，同步全局日志级别并触发回调.
// 必须在 Load 指定了配置文件之后调用.
func Watch() {
	mu.Lock()
	v := vInstance
	mu.Unlock()

	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name, "op", event.Op.String())
		const debounceTimeout = 100 * time.Millisecond
		time.Sleep(debounceTimeout)

		conf, err := decode(v)
		if err != nil {
			slog.Error("reload config failed", "error", err)
			return
		}

		logging.SetLevel(conf.Log.Level)
		slog.Info("config hot-reloaded and validated successfully", "log_level", conf.Log.Level)

		mu.Lock()
		hooks := append([]func(*Config){}, onReload...)
		mu.Unlock()
		for _, hook := range hooks {
			hook(conf)
		}
	})
	v.WatchConfig()
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}
	mask(configMap)

	masked, err := json.Marshal(configMap)
	if err != nil {
		slog.Error("failed to marshal masked config", "error", err)
		return
	}
	slog.Debug("current effective configuration", "config", string(masked))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "token", "endpoint"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}
		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return vInstance
}

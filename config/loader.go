package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix = "SENTINELA"
	fileName  = "sentinela"
)

// New cria um viper com env SENTINELA_* (ex.: SENTINELA_REDIS_ADDR) e o arquivo
// informado; sem arquivo, procura sentinela.yaml/.yml em . e /etc/sentinela.
func New(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile([]string{".", "/etc/sentinela"}); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func findConfigFile(dirs []string) string {
	for _, dir := range dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, fileName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// SetDefaults registra todos os valores padrão. Também garante que toda chave
// exista no viper, condição para AutomaticEnv valer no Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.upstream_url", "http://localhost:3000")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_concurrent", 100)
	v.SetDefault("server.acquire_timeout", 0)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "sentinela.db")

	v.SetDefault("gate.enabled", true)
	v.SetDefault("gate.api_keys", []string{"demo-key"})
	v.SetDefault("gate.credential_headers", []string{"X-API-Key", "Authorization"})
	v.SetDefault("gate.limit", 100)
	v.SetDefault("gate.window", time.Minute)
	v.SetDefault("gate.block_on_limit", true)
	v.SetDefault("gate.block_for", time.Minute)
	v.SetDefault("gate.routes", []map[string]any{{
		"pattern":   "/api/transaction",
		"limit":     10,
		"window":    "1m",
		"block_for": "10s",
	}})
	v.SetDefault("gate.store_timeout", 2*time.Second)

	v.SetDefault("logging.monitored_paths", []string{"/api/transaction", "/api/history", "/api/balance"})
	v.SetDefault("logging.include_gate_latency", true)
	v.SetDefault("logging.queue_size", 1024)
	v.SetDefault("logging.workers", 2)
	v.SetDefault("logging.write_timeout", 2*time.Second)

	v.SetDefault("detection.enabled", true)
	v.SetDefault("detection.interval", time.Minute)
	v.SetDefault("detection.rule_timeout", 10*time.Second)
	v.SetDefault("detection.max_requests_per_minute", 100)
	v.SetDefault("detection.max_failed_auth", 20)
	v.SetDefault("detection.sensitive_endpoint", "/api/transaction")
	v.SetDefault("detection.precondition_endpoint", "/api/balance")

	v.SetDefault("admin.token", "")
	v.SetDefault("admin.throttle_rps", 5.0)
	v.SetDefault("admin.throttle_burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load lê o arquivo (ausente não é erro), aplica env e valida.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if c.Logging.Workers == 0 && c.Logging.QueueSize > 0 {
		return errors.New("logging.workers: must be > 0 when logging.queue_size is set")
	}
	return nil
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

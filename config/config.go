// Package config carrega a configuração do gateway (arquivo YAML opcional +
// variáveis SENTINELA_*) e converte para as configs dos componentes.
package config

import (
	"time"

	"sentinela-gateway/middleware/guard/application"
	"sentinela-gateway/middleware/guard/domain"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Gate      GateConfig      `mapstructure:"gate"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Detection DetectionConfig `mapstructure:"detection"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	UpstreamURL       string        `mapstructure:"upstream_url" validate:"required,url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// MaxConcurrent <= 0 desliga o limite de requisições simultâneas ao upstream.
	MaxConcurrent  int           `mapstructure:"max_concurrent" validate:"gte=0"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"gte=0"`
}

type RedisConfig struct {
	// Enabled=false usa os stores em memória (um único processo).
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver" validate:"oneof=sqlite memory"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
}

type RouteRuleConfig struct {
	Pattern  string        `mapstructure:"pattern" validate:"required,startswith=/"`
	Limit    int           `mapstructure:"limit" validate:"gt=0"`
	Window   time.Duration `mapstructure:"window" validate:"gt=0"`
	BlockFor time.Duration `mapstructure:"block_for" validate:"gte=0"`
}

type GateConfig struct {
	Enabled           bool              `mapstructure:"enabled"`
	APIKeys           []string          `mapstructure:"api_keys" validate:"required_if=Enabled true,dive,required"`
	CredentialHeaders []string          `mapstructure:"credential_headers" validate:"dive,required"`
	Limit             int               `mapstructure:"limit" validate:"gt=0"`
	Window            time.Duration     `mapstructure:"window" validate:"gt=0"`
	BlockOnLimit      bool              `mapstructure:"block_on_limit"`
	BlockFor          time.Duration     `mapstructure:"block_for" validate:"gte=0"`
	Routes            []RouteRuleConfig `mapstructure:"routes" validate:"dive"`
	StoreTimeout      time.Duration     `mapstructure:"store_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	MonitoredPaths []string `mapstructure:"monitored_paths" validate:"dive,startswith=/"`
	// IncludeGateLatency=false desconta o tempo do gate do responseTimeMs.
	IncludeGateLatency bool          `mapstructure:"include_gate_latency"`
	QueueSize          int           `mapstructure:"queue_size" validate:"gte=0"`
	Workers            int           `mapstructure:"workers" validate:"gte=0"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

type DetectionConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Interval             time.Duration `mapstructure:"interval" validate:"gt=0"`
	RuleTimeout          time.Duration `mapstructure:"rule_timeout" validate:"gt=0"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute" validate:"gt=0"`
	MaxFailedAuth        int           `mapstructure:"max_failed_auth" validate:"gt=0"`
	SensitiveEndpoint    string        `mapstructure:"sensitive_endpoint" validate:"required,startswith=/"`
	PreconditionEndpoint string        `mapstructure:"precondition_endpoint" validate:"required,startswith=/"`
}

type AdminConfig struct {
	Token         string  `mapstructure:"token"`
	ThrottleRPS   float64 `mapstructure:"throttle_rps" validate:"gt=0"`
	ThrottleBurst int     `mapstructure:"throttle_burst" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
}

// GateConfig converte para a configuração do gate (regra global + regras por rota).
func (c *Config) GateConfig() application.GateConfig {
	out := application.GateConfig{
		APIKeys: append([]string(nil), c.Gate.APIKeys...),
		Global: domain.RateRule{
			Limit:        c.Gate.Limit,
			Window:       c.Gate.Window,
			BlockOnLimit: c.Gate.BlockOnLimit,
			BlockFor:     c.Gate.BlockFor,
		},
		StoreTimeout: c.Gate.StoreTimeout,
	}
	for _, r := range c.Gate.Routes {
		out.Routes = append(out.Routes, application.RouteRule{
			Pattern: r.Pattern,
			Rule: domain.RateRule{
				Name:         routeRuleName(r.Pattern),
				Limit:        r.Limit,
				Window:       r.Window,
				BlockOnLimit: true,
				BlockFor:     r.BlockFor,
			},
		})
	}
	return out
}

// DetectionConfig mantém as janelas e dedups padrão; só os limiares são configuráveis.
func (c *Config) DetectionConfig() application.DetectionConfig {
	out := application.DefaultDetectionConfig()
	out.Interval = c.Detection.Interval
	out.RuleTimeout = c.Detection.RuleTimeout
	out.MaxRequestsPerMinute = c.Detection.MaxRequestsPerMinute
	out.MaxFailedAuth = c.Detection.MaxFailedAuth
	out.SensitiveEndpoint = c.Detection.SensitiveEndpoint
	out.PreconditionEndpoint = c.Detection.PreconditionEndpoint
	return out
}

// "/api/transaction" -> "api_transaction"
func routeRuleName(pattern string) string {
	b := []byte(pattern)
	out := b[:0]
	for _, ch := range b {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			out = append(out, ch)
		default:
			if len(out) > 0 && out[len(out)-1] != '_' {
				out = append(out, '_')
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '_' {
		out = out[:len(out)-1]
	}
	return string(out)
}

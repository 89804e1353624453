package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"sentinela-gateway/config"
)

type rootFlags struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Gateway de segurança: API key, rate limit, block list e detecção de abuso",
		Long: `Gateway reverso na frente da API de negócio.

Configuração:
  sentinela.yaml em . ou /etc/sentinela (ou --config), sobrescrito por
  variáveis SENTINELA_*, ex.: SENTINELA_REDIS_ADDR=redis:6379`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "arquivo de configuração (padrão: ./sentinela.yaml)")

	root.AddCommand(
		newServeCmd(flags),
		newDetectCmd(flags),
		newBlockCmd(flags),
		newUnblockCmd(flags),
		newBlockedCmd(flags),
	)
	return root
}

func (f *rootFlags) load() (*config.Config, error) {
	return config.Load(config.New(f.configFile))
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sentinela-gateway/config"
)

// withApp carrega a config, monta o app e roda fn. Logs vão para stderr para
// não misturar com a saída do comando.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, os.Stderr)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDetectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Roda um tick da detecção e imprime o relatório",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				report, err := a.engine.RunOnce(ctx)
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func newBlockCmd(flags *rootFlags) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "block <clientId>",
		Short: "Bloqueia uma identidade (token:<key>, ip:<addr> ou IP legado)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				warnLocal(cmd, a.cfg)
				if err := a.blocks.BlockFor(ctx, args[0], ttl, "cli"); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "blocked %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "bloqueio temporário (0 = até desbloqueio manual)")
	return cmd
}

func newUnblockCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <clientId>",
		Short: "Remove uma identidade da block list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				warnLocal(cmd, a.cfg)
				if err := a.blocks.Unblock(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", args[0])
				return nil
			})
		},
	}
}

func newBlockedCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "Lista as identidades bloqueadas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				members, err := a.blocks.List(ctx)
				if err != nil {
					return err
				}
				for _, m := range members {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			})
		},
	}
}

// Sem Redis a block list vive só neste processo e some ao sair.
func warnLocal(cmd *cobra.Command, cfg *config.Config) {
	if !cfg.Redis.Enabled {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: redis disabled, change is local to this process")
	}
}

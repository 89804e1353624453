// simulador gera tráfego normal ou de ataque contra o gateway para validar
// rate limit, bloqueios e os alertas da detecção.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL string
		apiKey  string
		pause   float64
	)
	root := &cobra.Command{
		Use:          "simulador",
		Short:        "Simula tráfego normal e de ataque contra o gateway",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8080", "endereço do gateway")
	root.PersistentFlags().StringVar(&apiKey, "api-key", "demo-key", "API key válida")
	root.PersistentFlags().Float64Var(&pause, "pause", 1, "fator das esperas entre chamadas (0 = sem espera)")

	report := func(cmd *cobra.Command, s *simulator, err error) error {
		fmt.Fprint(cmd.OutOrStdout(), s.summary())
		return err
	}

	var rounds int
	normal := &cobra.Command{
		Use:   "normal",
		Short: "balance, transaction e history em ritmo humano",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSimulator(baseURL, apiKey, pause)
			return report(cmd, s, s.normal(cmd.Context(), rounds))
		},
	}
	normal.Flags().IntVar(&rounds, "rounds", 20, "quantidade de ciclos")

	var flood, badKeys, parallel int
	attack := &cobra.Command{
		Use:   "attack",
		Short: "rajada de requisições seguida de chaves inválidas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSimulator(baseURL, apiKey, pause)
			return report(cmd, s, s.attack(cmd.Context(), flood, badKeys, parallel))
		},
	}
	attack.Flags().IntVar(&flood, "flood", 120, "requisições na rajada")
	attack.Flags().IntVar(&badKeys, "bad-keys", 10, "requisições com chave inválida")
	attack.Flags().IntVar(&parallel, "parallel", 20, "requisições simultâneas na rajada")

	var count int
	sequence := &cobra.Command{
		Use:   "sequence",
		Short: "transações sem consultar o saldo antes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSimulator(baseURL, apiKey, pause)
			return report(cmd, s, s.sequence(cmd.Context(), count))
		},
	}
	sequence.Flags().IntVar(&count, "count", 3, "quantidade de transações")

	root.AddCommand(normal, attack, sequence)
	return root
}

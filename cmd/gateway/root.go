package main

import (
	"fmt"
	"os"

	"admission-gateway/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "admission-gateway",
	Short: "Reverse proxy com controle de admissão por categoria",
	Long: `admission-gateway aplica cotas por (identidade, categoria) antes de
encaminhar a requisição ao upstream.

Configuração: admission-gateway.yaml em . ou /etc/admission-gateway, .env e
variáveis ADMISSION_* (ex.: ADMISSION_SERVER_UPSTREAM_URL=http://localhost:9000).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./admission-gateway.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, policiesCmd)
}

// loadConfig roda a cada comando (e não em cobra.OnInitialize) para que
// erros de configuração virem o erro do comando.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	return config.Load(config.New(cfgFile))
}

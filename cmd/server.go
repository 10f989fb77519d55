package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/curaious/llmux/internal/api"
	"github.com/curaious/llmux/internal/config"
	"github.com/curaious/llmux/internal/telemetry"
	"github.com/curaious/llmux/pkg/gateway"
	"github.com/curaious/llmux/pkg/gateway/providers/claude"
	"github.com/curaious/llmux/pkg/gateway/providers/codex"
	"github.com/curaious/llmux/pkg/gateway/providers/gemini"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the structured-output gateway",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		shutdownTelemetry := telemetry.NewProvider(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		defer shutdownTelemetry()

		gw := gateway.New(conf.Providers, claude.New(), codex.New(), gemini.New())

		s := api.New(conf, gw)
		s.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

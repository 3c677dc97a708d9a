package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SamoraDC/Tetrad/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a coding agent request reviews natively. Configure it with:

  {
    "mcpServers": {
      "tetrad": { "command": "tetrad", "args": ["mcp"] }
    }
  }

Available tools: tetrad_review_plan, tetrad_review_code, tetrad_review_tests,
tetrad_final_check, tetrad_status, tetrad_distill

Logs go to stderr so they never corrupt the stdio protocol. With
--metrics-addr, Prometheus metrics are served at /metrics on that address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	mcpCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	_ = viper.BindPFlag("metrics.addr", mcpCmd.Flags().Lookup("metrics-addr"))
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
	defer stop()

	l, err := getLogger()
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	addr := viper.GetString("metrics.addr")
	if addr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	orchestrator, err := getOrchestrator(registerer(reg))
	if err != nil {
		return err
	}

	if reg != nil {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			l.Info("serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	l.Info("starting MCP stdio server", zap.String("version", buildVersion))
	err = mcp.NewServer(orchestrator, buildVersion).ServeStdio(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerer avoids handing a typed nil registry to the orchestrator.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

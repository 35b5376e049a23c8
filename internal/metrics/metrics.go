// Package metrics exposes Prometheus counters the bot updates during
// operation, served at /metrics in text exposition format when a listen
// address is configured:
//   - bot_cycles_total{instrument,outcome}   - decision cycles by outcome
//   - bot_orders_total{instrument,action}    - market orders placed
//   - bot_shrink_retries_total{instrument}   - margin shrink retries
//   - bot_holds_total{instrument,reason}     - decisions downgraded to HOLD
//   - bot_protection_updates_total{instrument} - SL/TP reconciliations
//   - bot_equity_usd                         - last observed total equity
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmTraderBot/internal/ports"
)

var (
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Decision cycles by outcome (ok|hold|error)",
		},
		[]string{"instrument", "outcome"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Market orders placed",
		},
		[]string{"instrument", "action"},
	)

	ShrinkRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_shrink_retries_total",
			Help: "Order size reductions after margin rejections",
		},
		[]string{"instrument"},
	)

	Holds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_holds_total",
			Help: "Decisions downgraded to HOLD, split by reason (ratchet|clamp|parse|no_position)",
		},
		[]string{"instrument", "reason"},
	)

	ProtectionUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_protection_updates_total",
			Help: "Successful stop-loss/take-profit reconciliations",
		},
		[]string{"instrument"},
	)

	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_equity_usd",
			Help: "Last observed total account equity in USD",
		},
	)
)

func init() {
	prometheus.MustRegister(Cycles, Orders, ShrinkRetries, Holds, ProtectionUpdates, Equity)
}

// Serve starts the /metrics listener on addr and blocks until ctx is
// canceled. An empty addr disables the listener.
func Serve(ctx context.Context, addr string, logger ports.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "metrics listener started", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

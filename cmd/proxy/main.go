// Command proxy is a demonstration entrypoint: it sources directives
// with internal/config, launches the scheduler's worker run-loops with
// internal/runtime, and accepts TCP connections, attaching each one to
// an internal/h1 frontend mux. Grounded on the teacher's cmd/server/
// main.go: getenv-sourced tunables, a SIGINT/SIGTERM goroutine for
// shutdown, and ListenAndServe as the last call in main.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/haproxy-core/mincore/internal/conn"
	"github.com/haproxy-core/mincore/internal/config"
	"github.com/haproxy-core/mincore/internal/fdtable"
	"github.com/haproxy-core/mincore/internal/h1"
	"github.com/haproxy-core/mincore/internal/metrics"
	"github.com/haproxy-core/mincore/internal/pool"
	"github.com/haproxy-core/mincore/internal/rendez"
	"github.com/haproxy-core/mincore/internal/runtime"
)

const readScratchPoolName = "h1.read-scratch"
const readScratchSize = 4096

func main() {
	var (
		configFile string
		bind       string
		metricsBind string
		respBody  string
	)

	log := logrus.StandardLogger()

	root := &cobra.Command{
		Use:   "proxy",
		Short: "Run the worker scheduler and a demonstration H1 frontend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("loading directives: %w", err)
			}

			reg := prometheus.NewRegistry()
			metricsReg := metrics.NewRegistry(reg)

			caseMap, err := cfg.Global.LoadCaseAdjustFile()
			if err != nil {
				return fmt.Errorf("loading h1-case-adjust-file: %w", err)
			}

			sup := runtime.New(cfg.Global.SchedulerConfig(), log)

			poolMgr := pool.NewManager()
			scratchPool, err := poolMgr.Create(readScratchPoolName, readScratchSize, pool.FlagShared|pool.FlagExact, func() any {
				return make([]byte, readScratchSize)
			})
			if err != nil {
				return fmt.Errorf("creating read-scratch pool: %w", err)
			}
			rdv := rendez.New(uint(cfg.Global.NbThread))
			fdTable := fdtable.New(1024)

			ctx, cancel := context.WithCancel(context.Background())
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutting down")
				cancel()
			}()

			runErrCh := make(chan error, 1)
			go func() { runErrCh <- sup.Run(ctx) }()

			if metricsBind != "" {
				go serveMetrics(metricsBind, reg, log)
			}
			go samplePoolMetrics(ctx, metricsReg, scratchPool)

			ln, err := net.Listen("tcp", bind)
			if err != nil {
				cancel()
				return fmt.Errorf("listen on %s: %w", bind, err)
			}
			log.WithField("addr", bind).Info("accepting connections")

			bufWait := h1.NewBufWaitList(int64(cfg.Global.MaxConn))
			proxyOpt := h1.Options{FrontendHTTPClose: false}
			timeouts := h1.Timeouts{}
			if len(cfg.Proxies) > 0 {
				proxyOpt = cfg.Proxies[0].H1Options()
				timeouts = cfg.Proxies[0].Timeouts.Timeouts()
			}

			go acceptLoop(ctx, ln, sup, fdTable, timeouts, proxyOpt, caseMap, bufWait, respBody, scratchPool, rdv, log)

			err = <-runErrCh
			_ = ln.Close()
			if err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	root.Flags().StringVar(&configFile, "config", "", "path to a directives file (yaml/json/toml)")
	root.Flags().StringVar(&bind, "bind", ":8080", "frontend listen address")
	root.Flags().StringVar(&metricsBind, "metrics-bind", "", "Prometheus metrics listen address (empty disables)")
	root.Flags().StringVar(&respBody, "demo-body", "it works\n", "body served for every request")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("proxy exited")
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics listener stopped")
	}
}

func acceptLoop(ctx context.Context, ln net.Listener, sup *runtime.Supervisor, fdTable *fdtable.Table, to h1.Timeouts, opt h1.Options, caseMap *h1.CaseMap, bufWait *h1.BufWaitList, body string, scratchPool *pool.Pool, rdv *rendez.Rendezvous, log *logrus.Logger) {
	var next uint
	var nextFd int
	nthreads := uint(sup.Scheduler.NThreads())

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.WithError(err).Error("accept failed")
				return
			}
		}

		tid := next % nthreads
		next++

		c := conn.New(conn.Target{Name: nc.RemoteAddr().String()}, newNetTransport(nc, tid, scratchPool, rdv), tid)
		wc := sup.Scheduler.Thread(tid)
		entry := fdTable.Insert(nextFd, c, tid)
		nextFd++

		onReady := func(h *h1.Conn) { serveRequest(sup, entry, c, h, body) }

		_, err = h1.Init(c, true, to, opt, caseMap, bufWait, nil, wc, onReady)
		if err != nil {
			log.WithError(err).Error("h1 init failed")
			c.Release()
			continue
		}
	}
}

// samplePoolMetrics periodically exposes the read-scratch pool's
// allocated/used/failed counters.
func samplePoolMetrics(ctx context.Context, reg *metrics.Registry, p *pool.Pool) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.Snapshot()
			reg.ObservePoolSnapshot(readScratchPoolName, snap.Allocated, snap.Used, int(snap.Failed))
		}
	}
}

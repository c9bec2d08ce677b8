package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/bridge"
	"github.com/mCat-0/mCat-ac/internal/metrics"
	"github.com/mCat-0/mCat-ac/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge for a host bot runtime",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		e, err := setup(cmd, m)
		if err != nil {
			return err
		}
		defer e.close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = e.cfg.HTTP.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if schedule := e.cfg.Catalog.RefreshSchedule; schedule != "" {
			sched, err := scheduler.New(e.app, schedule, e.log.WithField("component", "scheduler"))
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
			}()
		}

		accessLog := e.log.WriterLevel(logrus.InfoLevel)
		defer accessLog.Close()

		srv := bridge.New(e.app, bridge.Options{
			Logger:    e.log.WithField("component", "bridge"),
			AccessLog: accessLog,
			Metrics:   m,
			Gatherer:  reg,
			UserRate:  e.cfg.HTTP.UserRate,
			UserBurst: e.cfg.HTTP.UserBurst,
			PageSize:  e.cfg.Render.PageSize,
		})
		if err := srv.Run(ctx, addr); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
}

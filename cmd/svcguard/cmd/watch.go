package cmd

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/svcguard/internal/httpapi"
	"github.com/psantana5/svcguard/internal/shutdown"
)

var watchListen string

// watchCmd runs the check loop in the foreground
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the watchdog in the foreground with an HTTP status endpoint",
	Long: `Runs a check cycle at the configured interval without relying on an
external scheduler, serving /status, /healthz, and /metrics over HTTP.
A cycle that is still running when the ticker fires is skipped, never
overlapped.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchListen, "listen", ":9380", "address for the status/metrics endpoint")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}

	mgr := shutdown.New(10*time.Second, app.log)
	mgr.Register(func(ctx context.Context) error {
		app.close()
		return nil
	})

	server := &http.Server{
		Addr:    watchListen,
		Handler: httpapi.New(app.st, app.exporter, app.log).Router(),
	}
	mgr.Register(server.Shutdown)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.Error("http server failed", map[string]interface{}{"error": err.Error()})
			mgr.Trigger()
		}
	}()
	app.log.Info("watch mode started", map[string]interface{}{
		"interval": app.cfg.CheckInterval.String(), "listen": watchListen,
	})

	ticker := time.NewTicker(app.cfg.CheckInterval)
	defer ticker.Stop()

	var running atomic.Bool
	cycle := func() {
		if !running.CompareAndSwap(false, true) {
			app.log.Warn("previous cycle still running, skipping")
			return
		}
		defer running.Store(false)

		res, err := app.escalator.RunCycle(context.Background())
		if err != nil {
			app.log.Error("check cycle failed", map[string]interface{}{"error": err.Error()})
			return
		}
		app.exporter.Update(res.State, res.Sample)
		if err := app.exporter.WriteTextfile(app.cfg.StateDir); err != nil {
			app.log.Warn("failed to write metrics textfile", map[string]interface{}{"error": err.Error()})
		}
	}

	go mgr.Wait()

	cycle()
	for {
		select {
		case <-ticker.C:
			go cycle()
		case <-mgr.Done():
			return mgr.Run()
		}
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/treasury/jsonrpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the vault JSON-RPC API",
	Long: `Serve exposes the vault operations as JSON-RPC 2.0 over HTTP at /rpc.
When refresh_cron is set in the config, every treasury is reconciled on
that schedule in the background. The server drains in-flight requests on
SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := jsonrpc.NewServer(a.vault, a.cfg.Meta(), a.log).Bridge()
	defer bridge.Close()

	mux := http.NewServeMux()
	mux.Handle("/rpc", bridge)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})

	srv := &http.Server{Addr: a.cfg.Server.Listen, Handler: mux}

	var sched *cron.Cron
	if spec := a.cfg.Server.RefreshCron; spec != "" {
		sched = cron.New()
		if _, err := sched.AddFunc(spec, func() { refreshSweep(ctx, a) }); err != nil {
			return fmt.Errorf("refresh_cron %q: %w", spec, err)
		}
		sched.Start()
		a.log.Info("refresh schedule active", zap.String("cron", spec))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("serving vault rpc", zap.String("listen", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		if sched != nil {
			// Wait for a running sweep before tearing the service down.
			<-sched.Stop().Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}

package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/fakeapp"
	"github.com/kuitang/knowledge-e2e/internal/obs"
	"github.com/spf13/cobra"
)

func newServeFakeCmd(a *app) *cobra.Command {
	var (
		addr    string
		jobStep int
	)
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Run the in-process fake of the knowledge service",
		Long: `Run the fake knowledge service: the REST API under /api, GET /health, and the
HTML screens the browser tests drive. Point API_URL and BASE_URL at it.

Example:
  suite serve-fake --addr 127.0.0.1:8000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := fakeapp.New(fakeapp.Options{JobStep: jobStep})
			if err != nil {
				return err
			}
			defer srv.Close()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), ln, srv.Handler(), cmd)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().IntVar(&jobStep, "job-step", 25, "extraction progress added per job poll")
	return cmd
}

// serve runs handler on ln until ctx is cancelled or the process is interrupted.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := obs.Pkg("cli")
	hs := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()

	url := "http://" + ln.Addr().String()
	logger.Info("fake_app_listening", "url", url)
	printf(cmd.OutOrStdout(), "fake app listening on %s\n", url)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("fake_app_stopped")
	return nil
}

package commands

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/server"
	"github.com/livetemplate/storefront/internal/source"
)

const shutdownTimeout = 10 * time.Second

func init() {
	// Clean output without timestamps
	log.SetFlags(0)
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront, the preview surface and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)))
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			return a.serve(ctx, cmd.OutOrStdout(), cfg, ln)
		},
	}

	f := cmd.Flags()
	f.IntP("port", "p", 0, "port to listen on (default from config: 8080)")
	f.String("host", "", "host to bind (default from config: localhost)")
	f.BoolP("watch", "w", false, "reload catalog feeds when files in the catalog dir change")
	a.bind(keyPort, f.Lookup("port"))
	a.bind(keyHost, f.Lookup("host"))
	a.bind(keyWatch, f.Lookup("watch"))
	return cmd
}

// serve runs the server on ln until ctx is cancelled.
func (a *app) serve(ctx context.Context, out io.Writer, cfg *config.Config, ln net.Listener) error {
	cs, release, err := a.openStore(ctx, cfg)
	if err != nil {
		ln.Close()
		return err
	}
	defer release()

	registry, err := source.NewRegistry(cfg.Catalog)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to load catalog feeds: %w", err)
	}
	defer registry.Close()

	srv, err := server.New(server.Options{Config: cfg, Store: cs, Registry: registry})
	if err != nil {
		ln.Close()
		return err
	}

	fmt.Fprintf(out, "🛍️  Storefront Server\n\n")
	fmt.Fprintf(out, "Config store: %s\n", cfg.Database.GetDriver())
	if names := registry.Names(); len(names) > 0 {
		fmt.Fprintf(out, "Catalog feeds: %v\n", names)
	}

	if cfg.Server.Watch {
		if err := srv.EnableWatch(cfg.Catalog.GetDir()); err != nil {
			ln.Close()
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Fprintf(out, "👀 Watching %s for catalog changes\n", cfg.Catalog.GetDir())
	}

	fmt.Fprintf(out, "\n🌐 Server running at http://%s\n", ln.Addr())
	if op := config.GetOperator(); op != "" {
		fmt.Fprintf(out, "👤 Operator: %s\n", op)
	}
	if !cfg.API.IsAuthEnabled() {
		fmt.Fprintf(out, "⚠️  Admin API has no keys configured; anyone who can reach it can publish\n")
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
	}

	fmt.Fprintf(out, "\nShutting down...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

package app

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkglens/internal/server"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API on loopback",
		Long: `Serve the pkglens HTTP API for the local dashboard front-end.

The server only binds loopback addresses; pkglens is a local tool and
refuses to listen on anything reachable from the network. All endpoints
are request-driven: collection, verification, and conflict scans run
inside the request that asks for them.

Endpoints:
  GET    /api/packages      collect and return the inventory
  POST   /api/verify        verify one package {"manager":..,"name":..}
  POST   /api/verify-all    verify everything, return a summary
  GET    /api/conflicts     run the conflict scan
  GET    /api/history       uninstall history
  DELETE /api/history       clear the history
  POST   /api/uninstall     uninstall one package
  GET    /api/export/csv    CSV download`,
		Example: `  # Default address (127.0.0.1:8008)
  pkglens serve

  # Custom port
  pkglens serve --addr 127.0.0.1:9000`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: 127.0.0.1:8008)")
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	addr := p.cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(p.registry, p.collector, p.verifier, p.scanner, p.tracker, p.log.Named("server"))
	return srv.ListenAndServe(ctx, addr)
}

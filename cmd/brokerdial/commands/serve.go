package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/callsession"
	"github.com/eburon/brokerdial/pkg/crm"
	"github.com/eburon/brokerdial/pkg/dialapi"
	"github.com/eburon/brokerdial/pkg/persona"
	"github.com/eburon/brokerdial/pkg/review"
	"github.com/eburon/brokerdial/pkg/transport"
)

const defaultListen = "127.0.0.1:8080"

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the call manager to a UI over HTTP and websocket",
	Long: `Serve the call manager. A UI drives calls through the JSON endpoints
under /api and streams microphone audio, playback and live events over
/ws. Calls use the voice backend of the selected context.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default: context listen, then "+defaultListen+")")
	rootCmd.AddCommand(serveCmd)
}

// personaSource reads the stored persona at call time, falling back to the
// default when the store cannot be read.
func personaSource(store *persona.Store, logger *slog.Logger) func() persona.Persona {
	return func() persona.Persona {
		p, err := store.Get(context.Background())
		if err != nil {
			logger.Warn("persona unavailable, using default", "error", err)
			return persona.Default()
		}
		return p
	}
}

// allowOrigins accepts websocket upgrades from a comma-separated list of
// origins, e.g. a UI dev server. Empty keeps the same-origin check.
func allowOrigins(list string) func(*http.Request) bool {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	allowed := make(map[string]bool)
	for _, o := range strings.Split(list, ",") {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := getContext()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, c, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	backend, err := newBackend(ctx, c, logger)
	if err != nil {
		return err
	}
	debounce, err := c.DebounceDuration()
	if err != nil {
		return err
	}

	leads := crm.NewOptimistic(e.crm, logger)
	gate := review.NewGate(leads, e.files, review.WithLogger(logger))
	device := dialapi.NewDevice()
	defer device.Close()

	mgr, err := callsession.New(callsession.Config{
		NewTransport: func(destination string) transport.Transport {
			return transport.New(backend, device, transport.WithLogger(logger.With("destination", destination)))
		},
		Persona:  personaSource(e.personas, logger),
		Gate:     gate,
		Debounce: debounce,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	api, err := dialapi.NewServer(dialapi.Config{
		Manager:     mgr,
		Gate:        gate,
		CRM:         leads,
		Personas:    e.personas,
		Device:      device,
		Logger:      logger,
		CheckOrigin: allowOrigins(c.GetExtra("allowed_origins")),
	})
	if err != nil {
		return err
	}
	defer api.Close()

	addr := serveListen
	if addr == "" {
		addr = c.Listen
	}
	if addr == "" {
		addr = defaultListen
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("serving", "addr", addr, "context", c.Name, "backend", backend.Name())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s (Ctrl+C to stop)\n", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if p := gate.Pending(); p != nil {
		logger.Warn("shutting down with a recording pending review", "handle", p.Handle)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	api.Close()
	return srv.Shutdown(shutdownCtx)
}

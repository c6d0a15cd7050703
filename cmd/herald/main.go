// main is the entry point of the Herald application.
// It initializes the configuration, logger, database, GeoIP provider, target list,
// and runs the status poller next to the HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/woozymasta/herald/internal/config"
	"github.com/woozymasta/herald/internal/fake"
	"github.com/woozymasta/herald/internal/game"
	"github.com/woozymasta/herald/internal/geoip"
	"github.com/woozymasta/herald/internal/logger"
	"github.com/woozymasta/herald/internal/maintenance"
	"github.com/woozymasta/herald/internal/poller"
	"github.com/woozymasta/herald/internal/server"
	"github.com/woozymasta/herald/internal/storage"
	"github.com/woozymasta/herald/internal/targets"
	"github.com/woozymasta/herald/internal/vars"
)

func main() {
	cfg := config.Parse()

	logCloser := logger.Setup(cfg.Logger)
	defer func() { _ = logCloser.Close() }()

	log.Info().Str("version", vars.Version).Msg("Starting herald service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// GeoIP
	var locator poller.Locator
	if !cfg.GeoIP.Disable {
		log.Info().Msg("Checking GeoIP database...")
		if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		geoProvider, err := geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		} else {
			locator = geoProvider
			defer func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
		}
	}

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Targets
	static, err := targets.ParseList(cfg.Targets.List)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid target")
	}

	if cfg.FakeListen != "" {
		responder, err := fake.Listen(cfg.FakeListen, fake.DevHandler(fake.RandomInfo(), []byte{0x4A, 0x7E, 0x11, 0x05}))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start fake game server")
		}
		defer func() { _ = responder.Close() }()

		log.Warn().Str("address", responder.Addr().String()).Msg("Fake game server listening")
		static = append(static, targets.Target{Name: "fake", Host: responder.Host(), Port: responder.Port()})
	}

	list := static
	if cfg.Targets.File != "" {
		fromFile, err := targets.LoadFile(cfg.Targets.File)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load targets file")
		}
		list = append(append([]targets.Target{}, static...), fromFile...)
	}

	// Poller
	client := game.NewClient(cfg.A2S, poller.TraceObserver(logger.Component("a2s")))
	poll := poller.New(client, store, locator, poller.Options{
		Interval:         cfg.Poll.Interval,
		Workers:          cfg.Poll.Workers,
		QueriesPerSecond: cfg.Poll.Rate,
		OnCycle:          announce,
	})
	poll.SetTargets(list)

	if maintenance.Run(ctx, cfg, store, poll) {
		return
	}

	if len(list) == 0 {
		log.Warn().Msg("No targets configured, waiting for registrations")
	}

	// Init server
	srvHandler := server.New(store, poll, client, cfg)
	srvHandler.StartWorkers()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srvHandler.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return poll.Run(gctx)
	})

	if cfg.Targets.File != "" {
		g.Go(func() error {
			return targets.Watch(gctx, cfg.Targets.File, func(fromFile []targets.Target) {
				poll.SetTargets(append(append([]targets.Target{}, static...), fromFile...))
			})
		})
	}

	g.Go(func() error {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Service failed")
	}

	// Stop workers (wait queue done)
	srvHandler.StopWorkers()

	log.Info().Msg("Server exited")
}

// announce logs the servers that answered in a cycle, when at least one did.
func announce(results []poller.Result) {
	names := make([]string, 0, len(results))
	players := 0
	for _, r := range results {
		if r.Online() {
			names = append(names, r.Info.Name)
			players += int(r.Info.Players)
		}
	}
	if len(names) == 0 {
		return
	}

	log.Info().Strs("servers", names).Int("players", players).Msg("Servers online")
}

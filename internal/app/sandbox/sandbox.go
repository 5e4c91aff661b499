package sandbox

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"rtb-client/internal/config"
	"rtb-client/internal/sandbox/api"
	"rtb-client/internal/sandbox/engine"
	"rtb-client/internal/sandbox/listener"
	"rtb-client/internal/sandbox/storage"
)

// Server is the local stand-in for the remote ad endpoint.
type Server struct {
	src     engine.Source
	eng     *engine.DeliveryEngine
	handler http.Handler
}

func New(src engine.Source, reports storage.ReportStore, apps map[string]string) *Server {
	eng := engine.NewEngine()
	return &Server{
		src:     src,
		eng:     eng,
		handler: api.Router(api.NewDeliveryHandler(eng, reports, apps)),
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Engine() *engine.DeliveryEngine { return s.eng }

// Refresh rebuilds the inventory snapshot from the source.
func (s *Server) Refresh(ctx context.Context) error {
	return s.eng.BuildSnapshot(ctx, s.src)
}

// StartRefresher refreshes immediately and then every interval until ctx is done.
func (s *Server) StartRefresher(ctx context.Context, every time.Duration) {
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			if err := s.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("refresh inventory")
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reports
	var reports storage.ReportStore
	if cfg.Sandbox.RedisAddr != "" {
		rr := storage.NewRedisReports(cfg.Sandbox.RedisAddr)
		defer rr.Close()
		reports = rr
		log.Info().Str("addr", cfg.Sandbox.RedisAddr).Msg("using redis report store")
	} else {
		reports = storage.NewMemoryReports()
		log.Info().Msg("using memory report store")
	}

	// Inventory
	var (
		srv *Server
		pg  *storage.Store
	)
	switch {
	case cfg.HasPostgres():
		var err error
		pg, err = storage.New(rootCtx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init storage")
		}
		defer pg.Close()
		srv = New(pg, reports, cfg.Sandbox.Apps)
		if err := srv.Refresh(rootCtx); err != nil {
			log.Fatal().Err(err).Msg("initial snapshot build")
		}
		// Listener (LISTEN/NOTIFY)
		go listener.ListenAndRefresh(rootCtx, pg, srv.Engine(), cfg.Listener.Channel, cfg.Backoff())
	case cfg.Sandbox.InventoryFile != "":
		srv = New(storage.NewFileStore(cfg.Sandbox.InventoryFile), reports, cfg.Sandbox.Apps)
		srv.StartRefresher(rootCtx, 30*time.Second)
	default:
		log.Warn().Msg("no inventory configured; serving empty payloads")
		srv = New(storage.StaticStore(nil), reports, cfg.Sandbox.Apps)
		_ = srv.Refresh(rootCtx)
	}

	httpSrv := &http.Server{
		Addr:         cfg.Sandbox.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Sandbox.Addr).Int("apps", len(cfg.Sandbox.Apps)).Msg("sandbox server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	waitForSignal()
	log.Info().Msg("shutdown...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = httpSrv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

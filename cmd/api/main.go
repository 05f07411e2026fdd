package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"passage.dev/internal/auth"
	"passage.dev/internal/config"
	"passage.dev/internal/httpapi"
	"passage.dev/internal/idp"
	"passage.dev/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.PGDSN != "" {
		pg, err := auth.OpenPG(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pg
		db = pg.DB()
	} else {
		log.Printf("PASSAGE_PG_DSN is empty, using in-memory store")
		store = auth.NewInMemory()
	}

	codec, err := auth.NewCodec(cfg.AccessSecret, cfg.RefreshSecret,
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithAudience(cfg.TokenAudience),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	svc, err := auth.NewService(store, codec)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	opts := []httpapi.Option{
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
	}
	if cfg.GoogleEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		google, err := idp.NewGoogle(ctx, idp.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		cancel()
		if err != nil {
			// The credential path still works without the provider.
			log.Printf("google discovery failed, sign-in disabled: %v", err)
		} else {
			opts = append(opts, httpapi.WithGoogle(google))
		}
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version, opts...)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// expired refresh tokens are also dropped lazily on use, the sweeper
	// just keeps the table from growing
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-reaperCtx.Done():
				return
			case <-ticker.C:
				n, err := svc.PurgeExpiredSessions(reaperCtx)
				if err != nil {
					log.Printf("session purge: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("session purge: removed %d expired tokens", n)
				}
			}
		}
	}()

	log.Printf("Starting passage-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)
	stopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

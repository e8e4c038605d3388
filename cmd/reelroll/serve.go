package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelroll/reelroll/internal/config"
	"github.com/reelroll/reelroll/internal/geoip"
	"github.com/reelroll/reelroll/internal/pexels"
	"github.com/reelroll/reelroll/internal/searchcache"
	"github.com/reelroll/reelroll/internal/server"
	"github.com/reelroll/reelroll/internal/storage"
	"github.com/reelroll/reelroll/internal/video"
	"github.com/reelroll/reelroll/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with the widget and /api/random",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := setupLogger(os.Stdout, cfg.LogLevel, true); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	config.RegisterServerFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	source, pinger, cleanup, err := buildSource(startupCtx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	resolver := geoip.Open(cfg.GeoIPDB)
	defer func() { _ = resolver.Close() }()

	var webFS fs.FS
	if sub, err := fs.Sub(web.DistFS, "dist"); err == nil {
		webFS = sub
		slog.Info("embedded frontend loaded")
	} else {
		slog.Warn("no embedded frontend found, widget serving disabled", "error", err)
	}

	srv := server.New(server.Config{
		Source:       source,
		Pinger:       pinger,
		WebFS:        webFS,
		BaseURL:      cfg.BaseURL,
		MediaOrigins: cfg.MediaOrigins(),
		Policy:       cfg.Policy(),
		RateLimit:    cfg.RateLimit,
		RateBurst:    cfg.RateBurst,
		GeoIP:        resolver,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("reelroll listening", "port", cfg.Port, "source", cfg.Source)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

// buildSource wires the configured video source. The returned pinger is nil
// when nothing external needs a health check.
func buildSource(ctx context.Context, cfg config.Config) (video.Source, server.Pinger, func(), error) {
	noop := func() {}

	switch cfg.Source {
	case config.SourceLibrary:
		lib, err := storage.New(ctx, storage.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			Bucket:         cfg.S3Bucket,
			Prefix:         cfg.S3Prefix,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("clip library initialization failed: %w", err)
		}
		if err := lib.CheckBucket(ctx); err != nil {
			return nil, nil, noop, fmt.Errorf("clip library bucket check failed: %w", err)
		}
		slog.Info("clip library ready", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		return lib, nil, noop, nil

	case config.SourcePexels:
		client := pexels.NewClient(cfg.PexelsURL, cfg.PexelsAPIKey)
		if cfg.RedisAddr == "" {
			slog.Info("search cache disabled")
			return client, nil, noop, nil
		}

		cache, err := searchcache.New(ctx, searchcache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.SearchCacheTTL,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("search cache connection failed: %w", err)
		}
		client.SetCache(cache)
		slog.Info("search cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SearchCacheTTL)
		return client, cache, func() { _ = cache.Close() }, nil
	}

	return nil, nil, noop, fmt.Errorf("unknown video source %q", cfg.Source)
}

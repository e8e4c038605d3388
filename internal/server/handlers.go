package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/reelroll/reelroll/internal/httputil"
	"github.com/reelroll/reelroll/internal/loader"
	"github.com/reelroll/reelroll/internal/render"
	"github.com/reelroll/reelroll/internal/video"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "cache unreachable",
			})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	httputil.NoStore(w)

	v, err := s.source.Random(r.Context())
	if err == nil {
		err = v.Validate()
	}
	if err != nil {
		slog.Error("random video failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Error fetching video: %v", err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, v)
}

// handlePlayer runs a whole load sequence on the server and answers with
// the finished player, for clients that cannot run the widget script.
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	httputil.NoStore(w)

	fetch := loader.FetcherFunc(func(ctx context.Context) (video.Descriptor, error) {
		v, err := s.source.Random(ctx)
		if err != nil {
			return video.Descriptor{}, err
		}
		if err := v.Validate(); err != nil {
			return video.Descriptor{}, err
		}
		return v, nil
	})

	var final loader.State
	result := loader.New(fetch, s.policy).Run(r.Context(), func(state loader.State) {
		final = state
	})
	if errors.Is(result.Err, loader.ErrCanceled) {
		slog.Info("player request canceled", "attempts", result.Attempts)
		return
	}

	var page bytes.Buffer
	if err := render.Page(&page, final, httputil.NonceFromContext(r.Context())); err != nil {
		slog.Error("failed to render player page", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to render player")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if final.Phase == loader.PhaseFailed {
		w.WriteHeader(http.StatusBadGateway)
	}
	_, _ = page.WriteTo(w)
}

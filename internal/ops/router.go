package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/observability"
	"github.com/halcyongames/starhold/internal/shared"
	"github.com/halcyongames/starhold/jobs"
)

// InfoPort serves the cached corporation summary.
type InfoPort interface {
	Info(ctx context.Context, corporationID int64) (corp.Info, error)
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Info       InfoPort
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
}

// NewRouter constructs the operational HTTP surface of a zone: health,
// corporation info reads and queue observability. Game traffic does not
// come through here.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})
	r.Use(secureMiddleware.Handler)
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	r.Use(params.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/corporations/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		info, err := params.Info.Info(r.Context(), id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) || errors.Is(err, corp.ErrNotFound) {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			params.Logger.Error("corporation info", slog.Int64("id", id), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			params.Logger.Error("encode corporation info", slog.Any("error", err))
		}
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}

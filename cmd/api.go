package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/export"
	"github.com/sells-group/business-finder/internal/metrics"
	"github.com/sells-group/business-finder/internal/model"
	"github.com/sells-group/business-finder/internal/runs"
	"github.com/sells-group/business-finder/internal/store"
	"github.com/sells-group/business-finder/internal/website"
)

const defaultNearby = 5

type api struct {
	mgr *runs.Manager
}

// newRouter builds the HTTP API around mgr.
func newRouter(mgr *runs.Manager, allowedOrigins []string) http.Handler {
	a := &api{mgr: mgr}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/search-url", a.searchURL)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", a.startRun)
			r.Get("/", a.listRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getRun)
				r.Post("/cancel", a.cancelRun)
				r.Post("/enrich", a.enrichRun)
				r.Put("/website", a.setWebsite)
				r.Get("/export", a.exportRun)
				r.Get("/nearby", a.nearby)
			})
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type startRunRequest struct {
	Location     string  `json:"location"`
	RadiusKM     float64 `json:"radius_km"`
	BusinessType string  `json:"business_type"`
}

func (a *api) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bt, err := model.ParseBusinessType(req.BusinessType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := model.SearchParameters{LocationQuery: req.Location, RadiusKM: req.RadiusKM, BusinessType: bt}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := a.mgr.Start(r.Context(), params)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	list, err := a.mgr.List(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []model.Run{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.mgr.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) cancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.mgr.Cancel(id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "id": id})
}

func (a *api) enrichRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.mgr.Enrich(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

type setWebsiteRequest struct {
	Name    string  `json:"name"`
	Website *string `json:"website"`
}

func (a *api) setWebsite(w http.ResponseWriter, r *http.Request) {
	var req setWebsiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Website != nil {
		trimmed := strings.TrimSpace(*req.Website)
		req.Website = &trimmed
	}

	b, err := a.mgr.SetWebsite(r.Context(), chi.URLParam(r, "id"), req.Name, req.Website)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *api) exportRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil || format == export.FormatSHP {
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	incompleteOnly, _ := strconv.ParseBool(q.Get("incomplete_only"))

	id := chi.URLParam(r, "id")
	run, err := a.mgr.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="businesses-`+truncateID(id)+`.`+string(format)+`"`)
	if err := export.Write(w, format, export.Filter(run.Businesses, incompleteOnly)); err != nil {
		zap.L().Error("export run", zap.String("run_id", id), zap.Error(err))
	}
}

func (a *api) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "lat must be a number between -90 and 90")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "lon must be a number between -180 and 180")
		return
	}
	k, err := intParam(q.Get("k"), defaultNearby)
	if err != nil || k <= 0 {
		writeError(w, http.StatusBadRequest, "k must be a positive integer")
		return
	}

	neighbors, err := a.mgr.Nearby(r.Context(), chi.URLParam(r, "id"), lat, lon, k)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, neighbors)
}

func (a *api) searchURL(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url": website.BrowserSearchURL(name, r.URL.Query().Get("address")),
	})
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps manager and store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, runs.ErrBusy),
		errors.Is(err, runs.ErrRunActive),
		errors.Is(err, runs.ErrNotActive),
		errors.Is(err, runs.ErrNoResult):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("api error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

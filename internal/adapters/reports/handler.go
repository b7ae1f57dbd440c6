// Package reports exposes the report façade, share-URL state codec and async
// export jobs over HTTP.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dashcore/internal/config"
	"dashcore/internal/filterstate"
	"dashcore/internal/logging"
	"dashcore/pkg/reportapi"
)

// Service is the report data entry point. *facade.Facade satisfies it.
type Service interface {
	Exporter
	FetchMeta(ctx context.Context, req reportapi.MetaRequest) (reportapi.Meta, error)
	FetchKpis(ctx context.Context, req reportapi.KpiRequest) (reportapi.KpiResponse, error)
	FetchTable(ctx context.Context, req reportapi.TableRequest) (reportapi.TableResponse, error)
	FetchDrilldown(ctx context.Context, req reportapi.DrilldownRequest) (reportapi.Drilldown, error)
	Config() *config.Config
}

// Handler serves the /api/v1 report endpoints plus /metrics and /healthz.
type Handler struct {
	svc      Service
	exports  ExportScheduler
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   chi.Router
}

type Option func(*Handler)

// WithExports enables the /api/v1/exports endpoints.
func WithExports(s ExportScheduler) Option {
	return func(h *Handler) { h.exports = s }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = logging.OrNop(l) }
}

func NewHandler(svc Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/reports/{reportID}", func(r chi.Router) {
			r.Use(h.knownReport)
			r.Get("/meta", h.handleMeta)
			r.Post("/kpis", h.handleKpis)
			r.Post("/table", h.handleTable)
			r.Post("/drilldown", h.handleDrilldown)
			r.Post("/export", h.handleExport)
			r.Get("/state", h.handleDecodeState)
			r.Post("/state", h.handleEncodeState)
		})
		if h.exports != nil {
			r.Post("/exports", h.handleExportCreate)
			r.Get("/exports/{exportID}", h.handleExportGet)
			r.Get("/exports/{exportID}/artifacts/{artifactID}", h.handleArtifact)
		}
	})
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}

func (h *Handler) knownReport(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "reportID")
		if _, ok := h.svc.Config().Report(id); !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("report %q not found", id))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decode reads an optional JSON body into v; an empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) handleMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.FetchMeta(r.Context(), reportapi.MetaRequest{ReportID: chi.URLParam(r, "reportID")})
	if err != nil {
		h.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *Handler) handleKpis(w http.ResponseWriter, r *http.Request) {
	var req reportapi.KpiRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid kpi request payload")
		return
	}
	req.ReportID = chi.URLParam(r, "reportID")
	resp, err := h.svc.FetchKpis(r.Context(), req)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTable(w http.ResponseWriter, r *http.Request) {
	var req reportapi.TableRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid table request payload")
		return
	}
	req.ReportID = chi.URLParam(r, "reportID")
	resp, err := h.svc.FetchTable(r.Context(), req)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDrilldown(w http.ResponseWriter, r *http.Request) {
	var req reportapi.DrilldownRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid drilldown request payload")
		return
	}
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entityId required")
		return
	}
	req.ReportID = chi.URLParam(r, "reportID")
	resp, err := h.svc.FetchDrilldown(r.Context(), req)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var req reportapi.ExportRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	req.ReportID = chi.URLParam(r, "reportID")
	if f := r.URL.Query().Get("format"); f != "" {
		req.Format = reportapi.Format(f)
	}
	out, err := h.svc.ExportData(r.Context(), req)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}
	contentType, ext := "text/csv; charset=utf-8", "csv"
	if req.Format == reportapi.FormatJSON {
		contentType, ext = "application/json", "json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.ReportID+"."+ext))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// stateResponse is the applied snapshot together with its share-URL form.
type stateResponse struct {
	Applied reportapi.AppliedFilters `json:"applied"`
	Query   string                   `json:"query"`
	URL     string                   `json:"url"`
}

func (h *Handler) stateResponse(reportID string, applied reportapi.AppliedFilters) stateResponse {
	q := filterstate.Encode(applied).Encode()
	u := path.Join("/reports", reportID)
	if q != "" {
		u += "?" + q
	}
	return stateResponse{Applied: applied, Query: q, URL: u}
}

// handleDecodeState turns share-URL query parameters into an applied snapshot.
// Malformed values fall back to the configured defaults.
func (h *Handler) handleDecodeState(w http.ResponseWriter, r *http.Request) {
	applied := filterstate.Decode(r.URL.Query(), h.svc.Config().StateDefaults())
	writeJSON(w, http.StatusOK, h.stateResponse(chi.URLParam(r, "reportID"), applied))
}

func (h *Handler) handleEncodeState(w http.ResponseWriter, r *http.Request) {
	var applied reportapi.AppliedFilters
	if err := decode(r, &applied); err != nil {
		writeError(w, http.StatusBadRequest, "invalid state payload")
		return
	}
	writeJSON(w, http.StatusOK, h.stateResponse(chi.URLParam(r, "reportID"), applied))
}

type exportCreateRequest struct {
	ReportID string `json:"reportId"`
	reportapi.AppliedFilters
	Formats     []reportapi.Format `json:"formats"`
	RequestedBy string             `json:"requestedBy"`
	Reason      string             `json:"reason"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportCreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	if _, ok := h.svc.Config().Report(req.ReportID); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report %q not found", req.ReportID))
		return
	}
	record, err := h.exports.EnqueueExport(r.Context(), ExportInput{
		ReportID:    req.ReportID,
		Applied:     req.AppliedFilters,
		Formats:     req.Formats,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	})
	switch {
	case errors.Is(err, ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExportGet(w http.ResponseWriter, r *http.Request) {
	record, ok := h.exports.GetExport(chi.URLParam(r, "exportID"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, rc, err := h.exports.OpenArtifact(r.Context(), chi.URLParam(r, "exportID"), chi.URLParam(r, "artifactID"))
	if err != nil {
		if errors.Is(err, ErrExportNotFound) || errors.Is(err, ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("open artifact", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}
	defer func() { _ = rc.Close() }()
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.ID+"."+string(artifact.Format)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream artifact", zap.String("artifact", artifact.ID), zap.Error(err))
	}
}

func (h *Handler) writeFetchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reportapi.ErrUnknownReport), errors.Is(err, reportapi.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("report request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report request failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

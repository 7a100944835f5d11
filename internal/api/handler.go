package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lodgeline/lodgeline/internal/config"
	"github.com/lodgeline/lodgeline/internal/contact"
	"github.com/lodgeline/lodgeline/internal/job"
	"github.com/lodgeline/lodgeline/internal/queue"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store job.Store
	queue queue.Queue
	cfg   *config.Config
	log   *zap.Logger
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(store job.Store, q queue.Queue, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{store: store, queue: q, cfg: cfg, log: log}
}

// Routes builds the router with the middleware chain applied.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(RateLimit(h.cfg.IntakeRPS)).Post("/jobs", h.SubmitJob)
		r.Post("/jobs/status", h.JobStatus)
		r.Get("/jobs/{contactID}", h.GetJob)
		r.Get("/health", h.Health)
	})
	return r
}

// SubmitJob handles POST /api/v1/jobs: it records the job as QUEUED, then
// enqueues the original payload for processing, and responds 202 with the
// record as written. The durable write happens before the enqueue so a
// worker can never pick up work for a contact id that has no record yet.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	contactID, err := contact.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.store.PutQueued(r.Context(), contactID)
	if err != nil {
		h.log.Error("record queued", zap.String("contact_id", contactID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record job")
		return
	}

	// The queue message is the intake payload, verbatim.
	if err := h.queue.Enqueue(r.Context(), body); err != nil {
		// The QUEUED record already landed with no matching message; the
		// caller must resubmit.
		h.log.Error("enqueue", zap.String("contact_id", contactID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusAccepted, rec)
}

// JobStatus handles POST /api/v1/jobs/status. The query carries the same
// contact record shape as intake and is validated the same way.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	contactID, err := contact.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondStatus(w, r, contactID)
}

// GetJob handles GET /api/v1/jobs/{contactID}: a direct lookup for callers
// holding the bare contact id.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	h.respondStatus(w, r, chi.URLParam(r, "contactID"))
}

// respondStatus reads the record and replies. A missing record reads as a
// synthetic UNKNOWN result, not an error: "no record yet" and "never
// submitted" are indistinguishable here.
func (h *Handler) respondStatus(w http.ResponseWriter, r *http.Request, contactID string) {
	rec, err := h.store.Get(r.Context(), contactID)
	if err != nil {
		h.log.Error("get record", zap.String("contact_id", contactID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read job status")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, job.Unknown(contactID))
		return
	}
	writeJSON(w, http.StatusOK, rec.Result())
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  h.cfg.StoreBackend,
		"queue":  h.cfg.QueueBackend,
	})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB max
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

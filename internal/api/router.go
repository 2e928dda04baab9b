package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"nudge/internal/engine"
	"nudge/internal/reminder"
	logx "nudge/pkg/logx"
)

const maxBodyBytes = 64 << 10

type handlers struct {
	deps Deps
	log  logx.Logger
}

// NewRouter builds the API routes. Everything except /healthz sits behind
// the token check when cfg.Token is set.
func NewRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handlers{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(log, deps))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(withAuth(cfg.Token))

		if cfg.Metrics && deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
		}
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}

		r.Get("/status", h.status)
		r.Get("/deliveries", h.deliveries)

		r.Route("/reminders", func(r chi.Router) {
			r.Get("/", h.list)
			r.Post("/", h.create)
			r.Post("/reschedule", h.reschedule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.get)
				r.Delete("/", h.remove)
				r.Put("/enabled", h.setEnabled)
				r.Post("/toggle", h.toggle)
				r.Get("/times", h.times)
			})
		})
	})
	return r
}

func (h *handlers) list(w http.ResponseWriter, _ *http.Request) {
	rs := h.deps.Reminders.List()
	out := make([]reminderView, 0, len(rs))
	for _, r := range rs {
		out = append(out, reminderView{Reminder: r, NextTimes: h.deps.Reminders.NextTimes(r.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := h.deps.Reminders.Add(r.Context(), req.input())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.log.Info("reminder created", logx.String("id", id))
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// reschedule draws a fresh set for every enabled reminder, like midnight does.
func (h *handlers) reschedule(w http.ResponseWriter, _ *http.Request) {
	h.deps.Reminders.Reschedule()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rem, ok := h.deps.Reminders.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, engine.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reminderView{Reminder: rem, NextTimes: h.deps.Reminders.NextTimes(id)})
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	h.deps.Reminders.Remove(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("enabled is required"))
		return
	}
	if err := h.deps.Reminders.SetEnabled(r.Context(), chi.URLParam(r, "id"), *req.Enabled); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) toggle(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.deps.Reminders.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *handlers) times(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.deps.Reminders.Get(id); !ok {
		writeError(w, http.StatusNotFound, engine.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"times": h.deps.Reminders.NextTimes(id)})
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Engine: h.deps.Reminders.Snapshot()}
	if h.deps.Ticker != nil {
		st := h.deps.Ticker.Status()
		resp.Ticker = &st
	}
	if h.deps.Deliveries != nil {
		resp.Channels = h.deps.Deliveries.Channels()
	}
	if h.deps.Supervisor != nil {
		c := h.deps.Supervisor.Counters()
		resp.Supervisor = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) deliveries(w http.ResponseWriter, r *http.Request) {
	if h.deps.Deliveries == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	items := h.deps.Deliveries.History()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		if n < len(items) {
			items = items[len(items)-n:]
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, reminder.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// requestLog logs each request at debug level and counts it.
func requestLog(log logx.Logger, deps Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			if deps.Metrics != nil {
				deps.Metrics.HTTPRequest(r.Method, strconv.Itoa(code))
			}
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", code),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// withAuth accepts either "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if tokenEqual(got, tok) {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			if ah := r.Header.Get("Authorization"); ah != "" {
				const p = "Bearer "
				if strings.HasPrefix(ah, p) && tokenEqual(strings.TrimSpace(strings.TrimPrefix(ah, p)), tok) {
					next.ServeHTTP(w, r)
					return
				}
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

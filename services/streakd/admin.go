package streakd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handstreak/native/referral"
	"handstreak/native/streak"
	"handstreak/observability"
	"handstreak/services/streakd/ingest"
	"handstreak/services/streakd/store"
)

const (
	operatorHeader = "X-Operator"
	maxBatchBytes  = 16 << 20
)

// Route groups used for rate limiting.
const (
	RouteGroupRuns  = "runs"
	RouteGroupAdmin = "admin"
	RouteGroupRead  = "read"
)

// AdminServer exposes the operator HTTP API.
type AdminServer struct {
	processor *Processor
	limiter   *RateLimiter
	logger    *slog.Logger
	router    chi.Router
}

// NewAdminServer constructs a server wrapping the provided processor. A nil
// limiter disables throttling.
func NewAdminServer(processor *Processor, limiter *RateLimiter, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AdminServer{processor: processor, limiter: limiter, logger: logger}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *AdminServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observeRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(read chi.Router) {
			read.Use(s.limiter.Middleware(RouteGroupRead))
			read.Get("/status", s.handleStatus)
			read.Get("/runs", s.handleListRuns)
			read.Get("/runs/{id}", s.handleGetRun)
			read.Get("/players/{username}", s.handleGetPlayer)
			read.Get("/referrals/{referrer}", s.handleGetReferrals)
			read.Handle("/feed", s.processor.Feed())
		})
		v1.With(s.limiter.Middleware(RouteGroupRuns)).Post("/runs", s.handleProcess)
		v1.Group(func(admin chi.Router) {
			admin.Use(s.limiter.Middleware(RouteGroupAdmin))
			admin.Post("/overrides", s.handlePropose)
			admin.Post("/overrides/confirm", s.handleConfirm)
			admin.Delete("/overrides", s.handleCancel)
			admin.Post("/referrals", s.handleAddReferral)
		})
	})
	return r
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.Status())
}

func (s *AdminServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	format, err := ingest.FormatFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	batch, err := ingest.Decode(http.MaxBytesReader(w, r.Body, maxBatchBytes), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("day")); raw != "" {
		day, err := ingest.ParseDay(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		batch.Day = day
	}
	force := false
	if raw := strings.TrimSpace(query.Get("force")); raw != "" {
		force, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid force flag")
			return
		}
	}
	result, err := s.processor.ProcessBatch(r.Context(), batch, RunOptions{Force: force, Source: "api:" + operatorFrom(r)})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type runView struct {
	ID        uuid.UUID       `json:"id"`
	Day       string          `json:"day"`
	Digest    string          `json:"digest"`
	Source    string          `json:"source"`
	Forced    bool            `json:"forced"`
	CreatedAt time.Time       `json:"created_at"`
	Report    json.RawMessage `json:"report"`
}

type runListItem struct {
	ID               uuid.UUID `json:"id"`
	Day              string    `json:"day"`
	Source           string    `json:"source"`
	Forced           bool      `json:"forced"`
	Processed        int       `json:"processed"`
	Errors           int       `json:"errors"`
	MilestoneWinners int       `json:"milestone_winners"`
	ReferralBonuses  int       `json:"referral_bonuses"`
	CreatedAt        time.Time `json:"created_at"`
}

func (s *AdminServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}
	runs, err := s.processor.RecentRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]runListItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, runListItem{
			ID:               run.ID,
			Day:              run.Day,
			Source:           run.Source,
			Forced:           run.Forced,
			Processed:        run.Processed,
			Errors:           run.Errors,
			MilestoneWinners: run.MilestoneWinners,
			ReferralBonuses:  run.ReferralBonuses,
			CreatedAt:        run.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *AdminServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.processor.Run(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runView{
		ID:        run.ID,
		Day:       run.Day,
		Digest:    run.Digest,
		Source:    run.Source,
		Forced:    run.Forced,
		CreatedAt: run.CreatedAt,
		Report:    json.RawMessage(run.Report),
	})
}

func (s *AdminServer) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	status, found, err := s.processor.LookupPlayer(r.Context(), operatorFrom(r), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No history found for player '%s'", status.Username))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type overrideRequest struct {
	Username string `json:"username"`
	Streak   int64  `json:"streak"`
}

type overrideResponse struct {
	streak.OverrideResult
	Prompt string `json:"prompt,omitempty"`
}

func (s *AdminServer) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.processor.ProposeOverride(r.Context(), operatorFrom(r), req.Username, req.Streak)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !result.Applied {
		writeJSON(w, http.StatusAccepted, overrideResponse{OverrideResult: result, Prompt: result.Confirmation.Prompt()})
		return
	}
	writeJSON(w, http.StatusOK, overrideResponse{OverrideResult: result})
}

func (s *AdminServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.processor.ConfirmOverride(r.Context(), operatorFrom(r), req.Username, req.Streak)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overrideResponse{OverrideResult: result})
}

func (s *AdminServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.processor.CancelOverride(operatorFrom(r))
	w.WriteHeader(http.StatusNoContent)
}

type referralRequest struct {
	ReferredPlayer string `json:"referred_player"`
	HandsPlayed    int64  `json:"hands_played"`
	ReferrerPlayer string `json:"referrer_player"`
}

func (s *AdminServer) handleAddReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := s.processor.AddReferral(r.Context(), req.ReferredPlayer, req.HandsPlayed, req.ReferrerPlayer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *AdminServer) handleGetReferrals(w http.ResponseWriter, r *http.Request) {
	summary, err := s.processor.LookupReferrals(r.Context(), chi.URLParam(r, "referrer"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *AdminServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("admin request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, streak.ErrValidation),
		errors.Is(err, referral.ErrValidation),
		errors.Is(err, referral.ErrSelfReferral),
		errors.Is(err, ingest.ErrMalformed),
		errors.Is(err, ErrDayRequired):
		return http.StatusBadRequest
	case errors.Is(err, streak.ErrDuplicateKey),
		errors.Is(err, streak.ErrStaleConfirmation),
		errors.Is(err, referral.ErrDuplicateReferral),
		errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrDayConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func operatorFrom(r *http.Request) string {
	return normaliseOperator(r.Header.Get(operatorHeader))
}

func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.API().Observe(route, r.Method, status, time.Since(start))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

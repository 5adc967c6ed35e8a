package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/gate/service"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type Dependencies struct {
	Logger       *zap.Logger
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	DeviceID string
	GateID   string
	EventIDs []string

	Gate  *service.Gate
	Sync  *service.SyncCoordinator
	Cache *service.TicketCache
	Queue *service.ActionQueue

	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	deps       Dependencies
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{logger: d.Logger.Named("http"), deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scans", s.handleScan)
		r.Post("/sync", s.handleSync)
		r.Post("/connectivity", s.handleConnectivity)
		r.Get("/status", s.handleStatus)
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       d.ReadTimeout,
		WriteTimeout:      d.WriteTimeout,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type scanResponse struct {
	types.ScanResult
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req types.ScanRequest
	if isProtobuf(r) {
		msg, err := readProto(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		req = scanRequestFromProto(msg)
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.GateID) == "" {
		req.GateID = s.deps.GateID
	}
	if strings.TrimSpace(req.EventID) == "" && len(s.deps.EventIDs) == 1 {
		req.EventID = s.deps.EventIDs[0]
	}

	res, err := s.deps.Gate.Scan(r.Context(), req)
	resp := scanResponse{ScanResult: res}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAuthorized):
			writeError(w, http.StatusForbidden, "not_authorized", err.Error())
			return
		case errors.Is(err, service.ErrEmptyScanInput):
			writeError(w, http.StatusBadRequest, "empty_input", err.Error())
			return
		case res.Status != "":
			// The verdict stands; the operator still gets it.
			s.logger.Warn("scan completed with error", zap.String("ticket_id", res.TicketID), zap.Error(err))
			resp.Warning = err.Error()
		default:
			s.logger.Error("scan error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
	}

	if isProtobuf(r) {
		writeProto(w, http.StatusOK, scanResultToProto(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	rep := s.deps.Sync.Sync(r.Context())
	if rep.Skipped {
		writeJSON(w, http.StatusConflict, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

type connectivityResponse struct {
	Online bool                `json:"online"`
	Synced bool                `json:"synced"`
	Report *service.SyncReport `json:"report,omitempty"`
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := decodeJSON(r, &req); err != nil || req.Online == nil {
		writeError(w, http.StatusBadRequest, "bad_json", `body must be {"online": true|false}`)
		return
	}

	rep, ran := s.deps.Sync.SetOnline(r.Context(), *req.Online)
	resp := connectivityResponse{Online: s.deps.Sync.Online(), Synced: ran}
	if ran {
		resp.Report = &rep
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	DeviceID string             `json:"device_id"`
	GateID   string             `json:"gate_id,omitempty"`
	EventIDs []string           `json:"event_ids"`
	Online   bool               `json:"online"`
	Pending  int                `json:"pending"`
	Queued   int                `json:"queued"`
	Cache    service.CacheStats `json:"cache"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.deps.Sync.Pending(r.Context())
	if err != nil {
		s.logger.Error("status pending count", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	queued, err := s.deps.Queue.Len(r.Context())
	if err != nil {
		s.logger.Error("status queue length", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	eventIDs := s.deps.EventIDs
	if eventIDs == nil {
		eventIDs = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		DeviceID: s.deps.DeviceID,
		GateID:   s.deps.GateID,
		EventIDs: eventIDs,
		Online:   s.deps.Sync.Online(),
		Pending:  pending,
		Queued:   queued,
		Cache:    s.deps.Cache.Stats(),
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/repo"
	"github.com/hamed0406/livemonitor/internal/scheduler"
)

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Service{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if err := decode(w, r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	svc, err := p.service()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Store.Create(r.Context(), svc); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Engine.OnCreate(svc.ID, svc.URI, svc.MonitorInterval); err != nil {
		s.Logger.Error("engine_create_error", zap.String("service_id", string(svc.ID)), zap.Error(err))
	}
	s.Logger.Info("service_created",
		zap.String("service_id", string(svc.ID)),
		zap.String("uri", svc.URI),
		zap.Int64("interval_ms", svc.MonitorInterval),
	)
	writeJSON(w, http.StatusCreated, svc)
}

func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "serviceId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var p updatePayload
	if err := decode(w, r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	patch, err := p.patch()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	unlock := s.locks.lock(id)
	defer unlock()

	svc, err := s.Store.Update(r.Context(), id, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	err = s.Engine.OnUpdate(id, patch.TargetPatch())
	if errors.Is(err, scheduler.ErrUnknownTarget) {
		err = s.monitorIfStored(r.Context(), id)
	}
	if err != nil {
		s.Logger.Error("engine_update_error", zap.String("service_id", string(id)), zap.Error(err))
	}
	s.Logger.Info("service_updated", zap.String("service_id", string(id)))
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "serviceId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.Engine.OnDelete(id)
	s.Logger.Info("service_deleted", zap.String("service_id", string(id)))
	writeJSON(w, http.StatusOK, map[string]string{"id": string(id)})
}

// monitorIfStored starts monitoring a service the engine does not know, reading it
// fresh from the store so a service deleted in the meantime stays unmonitored.
// Callers hold the id lock.
func (s *Server) monitorIfStored(ctx context.Context, id domain.TargetID) error {
	svc, err := s.Store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		s.Logger.Info("engine_update_skipped", zap.String("service_id", string(id)), zap.String("reason", "deleted"))
		return nil
	}
	if err != nil {
		return err
	}
	return s.Engine.OnCreate(svc.ID, svc.URI, svc.MonitorInterval)
}

func (s *Server) handleHealth(allowedHosts []string) http.HandlerFunc {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[strings.ToLower(h)] = true
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if len(allowed) > 0 && !allowed[hostOnly(r.Host)] {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			s.Logger.Warn("health_store_error", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "store unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"targets":   count(s.Targets),
			"loops":     count(s.Loops),
			"observers": count(s.Observers),
		})
	}
}

func count(c Counter) int {
	if c == nil {
		return 0
	}
	return c.Len()
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(hostport)
}

// decode reads a size-limited JSON body and rejects unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

// fail maps an error to a status code. Unexpected errors are logged, not echoed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *validationError
		tooBig  *http.MaxBytesError
		syntax  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": verr.Details()})
	case errors.As(err, &tooBig):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
	case errors.As(err, &syntax), errors.As(err, &typeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		strings.HasPrefix(err.Error(), "json: unknown field"), strings.HasPrefix(err.Error(), "body must"):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, repo.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.Logger.Error("request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/softcane/kube-remediator/internal/remediation"
)

// ActionsResponse is the body of GET /actions.
type ActionsResponse struct {
	Actions []remediation.ActionRecord `json:"actions"`
}

// ThresholdRequest is the body of PUT /threshold and GET /threshold.
type ThresholdRequest struct {
	Threshold *float64 `json:"threshold" validate:"required"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{Status: "healthy"})
}

func (s *Server) handleRemediate(w http.ResponseWriter, r *http.Request) {
	var p remediation.Prediction
	if err := s.decode(w, r, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result := s.engine.HandlePrediction(r.Context(), p)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ActionsResponse{Actions: s.engine.ActionHistory()})
}

func (s *Server) handleEffectiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.EffectivenessMetrics())
}

func (s *Server) handleFalsePositive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actionType := r.URL.Query().Get("action_type")
	if actionType == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("action_type query parameter is required"))
		return
	}

	if !s.engine.MarkFalsePositive(r.Context(), id, remediation.ActionType(actionType)) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("action %s of type %s not found", id, actionType))
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: fmt.Sprintf("action %s marked as false positive", id),
	})
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	threshold := s.engine.Threshold()
	s.writeJSON(w, http.StatusOK, ThresholdRequest{Threshold: &threshold})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetPredictionThreshold(*req.Threshold); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.handleGetThreshold(w, r)
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

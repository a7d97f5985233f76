package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/sandbox"
)

// ExecuteRequest is the POST /execute body.
type ExecuteRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input,omitempty"`
}

// ErrorResponse is the body of every 4xx and 5xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	defer r.Body.Close()

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "No code provided")
		return
	}
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "No language provided")
		return
	}

	outcome, err := s.executor.Execute(r.Context(), sandbox.ExecutionRequest{
		Language: req.Language,
		Code:     req.Code,
		Stdin:    req.Input,
	})
	if err != nil {
		var unsupported *sandbox.UnsupportedLanguageError
		if errors.As(err, &unsupported) {
			writeError(w, http.StatusBadRequest, unsupported.Error())
			return
		}
		if errors.Is(err, sandbox.ErrTooManyExecutions) {
			s.reject(w, r, ReasonConcurrency)
			return
		}
		s.logger.Error("execution failed", zap.String("language", req.Language), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.truncate(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, sandbox.Classify(outcome))
}

// truncate caps an infrastructure error message at the output limit.
func (s *Server) truncate(msg string) string {
	limit := s.cfg.Sandbox.OutputLimitBytes
	if limit > 0 && len(msg) > limit {
		return msg[:limit]
	}
	return msg
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyResponse reports the isolation decision.
type ReadyResponse struct {
	Status    string `json:"status"`
	Isolation string `json:"isolation"`
	Runtime   string `json:"runtime,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	decision := s.isolation.Decide(r.Context())

	resp := ReadyResponse{
		Status:    "ok",
		Isolation: decision.Mode(),
		Runtime:   decision.Runtime,
	}
	status := http.StatusOK
	// with fallback disabled, a missing runtime means every execution fails
	if !decision.ContainerRuntimeAvailable && s.cfg.Sandbox.Backend != "local" && !s.cfg.Sandbox.FallbackToHost {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status, resp)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hyperjump/shikibetsu/internal/intent"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/vector"
	"go.uber.org/zap"
)

// AddRequest is the body of POST /api/v1/examples.
type AddRequest struct {
	Text    string `json:"text"`
	Label   string `json:"label"`
	ExistOK bool   `json:"exist_ok"`
}

// BatchRequest is the body of POST /api/v1/examples/batch.
type BatchRequest struct {
	Examples []models.ExampleInput `json:"examples"`
	ExistOK  bool                  `json:"exist_ok"`
}

// RecognizeRequest is the body of POST /api/v1/recognize.
type RecognizeRequest struct {
	Text       string   `json:"text"`
	Detail     bool     `json:"detail"`
	Candidates []string `json:"candidates,omitempty"`
	Voting     string   `json:"voting,omitempty"`
}

func (s *Server) handleAddExample(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in := models.ExampleInput{Text: req.Text, Label: req.Label}
	if err := in.Validate(); err != nil {
		s.fail(w, "add example failed", err)
		return
	}
	s.logger.Debug("add example request", zap.String("label", in.Label), zap.Bool("exist_ok", req.ExistOK))
	added, err := s.pipeline.Add(r.Context(), in, req.ExistOK)
	if err != nil {
		s.fail(w, "add example failed", err)
		return
	}
	if !added {
		s.respondJSON(w, http.StatusOK, map[string]string{"id": in.Key().ID(), "status": "exists"})
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": in.Key().ID(), "status": "added"})
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("add batch request", zap.Int("examples", len(req.Examples)), zap.Bool("exist_ok", req.ExistOK))
	n, err := s.pipeline.AddBatch(r.Context(), req.Examples, req.ExistOK)
	if err != nil {
		s.fail(w, "add batch failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"added": n, "size": s.pipeline.Size()})
}

func (s *Server) handleRemoveExample(w http.ResponseWriter, r *http.Request) {
	var key models.Key
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("remove example request", zap.Stringer("key", key))
	if err := s.pipeline.Remove(r.Context(), key); err != nil {
		s.fail(w, "remove example failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": key.ID(), "status": "removed"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Clear(r.Context()); err != nil {
		s.fail(w, "clear failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleListExamples(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.respondError(w, http.StatusNotImplemented, "examples are not used in classifier mode")
		return
	}
	q := r.URL.Query()
	query := ListQuery{Query: q.Get("q"), Label: q.Get("label"), Limit: defaultListLimit}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = n
	}
	query.Fuzzy, _ = strconv.ParseBool(q.Get("fuzzy"))
	views, err := ListExamples(r.Context(), s.engine, query)
	if err != nil {
		s.fail(w, "example lookup failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"examples": views, "total": s.engine.Size()})
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	voting := req.Voting
	if voting == "" && s.config != nil {
		voting = s.config.Retriever.Voting
	}
	s.logger.Debug("recognize request", zap.Bool("detail", req.Detail), zap.Strings("candidates", req.Candidates), zap.String("voting", voting))
	d, err := s.pipeline.Recognize(r.Context(), req.Text, intent.Options{
		Detail:     req.Detail,
		Candidates: req.Candidates,
		Voting:     models.Voting(voting),
	})
	if err != nil {
		s.fail(w, "recognize failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, BuildStatus(s.pipeline, s.engine, s.config, s.logger))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateExample):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnknownIntent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vector.ErrEmptyIndex):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

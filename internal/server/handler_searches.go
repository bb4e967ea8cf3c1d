package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/worksizing/internal/config"
	"github.com/me/worksizing/internal/metrics"
	"github.com/me/worksizing/internal/scheduler"
	"github.com/me/worksizing/pkg/model"
)

// maxSearchBody caps the size of a search request body.
const maxSearchBody = 4 << 10

// statusClientClosedRequest is the non-standard status recorded when the
// client goes away before its search finishes.
const statusClientClosedRequest = 499

// searchRequest is the body of POST /api/v1/searches. Omitted settings take
// the server's defaults.
type searchRequest struct {
	N int64 `json:"n"`
	config.SearchConfig
}

func (s *Server) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	req := searchRequest{SearchConfig: s.defaults}
	r.Body = http.MaxBytesReader(w, r.Body, maxSearchBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, reqID, http.StatusRequestEntityTooLarge, &model.APIError{
				Code:    model.ErrValidation,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	rule, err := req.Prepare(req.N)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = &model.APIError{Code: model.ErrValidation, Message: err.Error()}
		}
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if details := s.config.CheckLimits(req.N, req.SearchConfig); len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("search exceeds server limits", details...))
		return
	}

	timeout := s.searchTimeout
	if d, _ := req.DeadlineDuration(); d > 0 && d < timeout {
		timeout = d
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	if err := s.searches.Acquire(ctx, 1); err != nil {
		s.respondSearchError(w, reqID, err)
		return
	}
	defer s.searches.Release(1)

	loop := scheduler.NewLoop(req.SchedulerConfig(), rule, s.logger)
	res, err := loop.Run(ctx, req.N, metrics.NewCollector(false, s.inst))
	if err != nil {
		s.respondSearchError(w, reqID, err)
		return
	}

	s.history.add(res)
	s.logger.Info("search finished",
		"run_id", res.RunID,
		"n", req.N,
		"value", res.Value,
		"elapsed", res.Elapsed.String(),
		"request_id", reqID)
	respondCreated(w, reqID, res)
}

func (s *Server) respondSearchError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, reqID, http.StatusGatewayTimeout,
			&model.APIError{Code: model.ErrTimeout, Message: "search did not finish in time"})
	case errors.Is(err, context.Canceled):
		s.logger.Debug("search abandoned by client", "error", err, "request_id", reqID)
		respondError(w, reqID, statusClientClosedRequest,
			&model.APIError{Code: model.ErrCancelled, Message: "search cancelled"})
	case errors.Is(err, model.ErrSearchSpaceExhausted):
		respondError(w, reqID, http.StatusUnprocessableEntity,
			&model.APIError{Code: model.ErrExhausted, Message: err.Error()})
	default:
		s.logger.Error("search failed", "error", err, "request_id", reqID)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
	}
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid query", model.FieldError{Field: "limit", Message: "must be an integer"}))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid query", model.FieldError{Field: "offset", Message: "must be an integer"}))
			return
		}
		opts.Offset = n
	}
	opts.Clamp()

	runs, total := s.history.list(opts)
	respondList(w, reqID, runs, opts.Page(total))
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	res := s.history.get(id)
	if res == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("search", id))
		return
	}
	respondOK(w, reqID, res)
}

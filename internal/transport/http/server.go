// package http implements the HTTP transport layer for the service.
// It handles incoming requests, decodes them, calls the appropriate service methods,
// and encodes the responses.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/service"
	"github.com/veritasapp/qna-router-service/internal/validation"
	"github.com/veritasapp/qna-router-service/pkg/logger/sl"
)

// Server holds the dependencies for the HTTP server, including the logger and service interfaces.
// Reputation stays internal: scores and trust levels shape routing and queue
// ordering but are never served over the API.
type Server struct {
	log        *slog.Logger
	engine     service.AssignmentEngine
	thread     service.ConversationThread
	moderation service.ModerationQueue
}

// NewServer creates a new instance of the HTTP server.
func NewServer(
	log *slog.Logger,
	engine service.AssignmentEngine,
	thread service.ConversationThread,
	moderation service.ModerationQueue,
) *Server {
	return &Server{
		log:        log,
		engine:     engine,
		thread:     thread,
		moderation: moderation,
	}
}

// Routes sets up the router with all middleware and API endpoints.
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(s.requestID)
	mux.Use(s.logRequest)
	mux.Use(s.metricsMiddleware)

	mux.Handle("/metrics", promhttp.Handler())

	mux.Post("/questions/submit", s.PostQuestionSubmit)
	mux.Get("/questions/get", s.GetQuestion)
	mux.Post("/questions/close", s.PostQuestionClose)
	mux.Post("/assignments/respond", s.PostAssignmentRespond)
	mux.Post("/messages/post", s.PostMessage)
	mux.Post("/reports/file", s.PostReportFile)
	mux.Post("/reports/claim", s.PostReportClaim)
	mux.Post("/reports/resolve", s.PostReportResolve)
	mux.Get("/reports/queue", s.GetReportQueue)

	return mux
}

func (s *Server) PostQuestionSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.PostQuestionSubmit"

	var req submitQuestionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	question, err := s.engine.SubmitQuestion(r.Context(), req.AskerID,
		domain.QuestionDomain(req.Domain), req.AreaID, req.TagID, req.Text)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusCreated, map[string]*domain.Question{"question": question})
}

func (s *Server) GetQuestion(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.GetQuestion"

	questionID, err := queryInt64(r, "question_id")
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	question, err := s.engine.GetQuestion(r.Context(), questionID)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	messages, err := s.thread.MessagesOf(r.Context(), questionID)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"question": question,
		"messages": messages,
	})
}

func (s *Server) PostQuestionClose(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.PostQuestionClose"

	var req closeQuestionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	question, err := s.engine.CloseQuestion(r.Context(), req.QuestionID, req.UserID)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]*domain.Question{"question": question})
}

func (s *Server) PostAssignmentRespond(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.PostAssignmentRespond"

	var req respondAssignmentRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	assignment, err := s.engine.RespondToAssignment(r.Context(), req.AssignmentID,
		req.ExpertID, service.AssignmentDecision(req.Decision), req.Reason)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]*domain.Assignment{"assignment": assignment})
}

func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.PostMessage"

	var req postMessageRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	message, err := s.thread.PostMessage(r.Context(), req.QuestionID, req.SenderID, req.Body, req.IsAnswer)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusCreated, map[string]*domain.Message{"message": message})
}

func (s *Server) PostReportFile(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.PostReportFile"

	var req fileReportRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	report, outcome, err := s.moderation.FileReport(r.Context(), req.ReporterID,
		domain.ContentType(req.ContentType), req.ContentID, domain.ReportReason(req.Reason))
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	code := http.StatusCreated
	if outcome != service.FileOutcomeCreated {
		code = http.StatusOK
	}

	s.respond(w, code, map[string]any{
		"report":  report,
		"outcome": outcome,
	})
}

func (s *Server) PostReportClaim(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.PostReportClaim"

	var req claimReportRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	report, err := s.moderation.ClaimNext(r.Context(), req.ModeratorID)
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	if report == nil {
		s.respond(w, http.StatusOK, map[string]any{"report": nil})
		return
	}

	s.respond(w, http.StatusOK, map[string]*domain.ContentReport{"report": report})
}

func (s *Server) PostReportResolve(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.PostReportResolve"

	var req resolveReportRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	report, err := s.moderation.Resolve(r.Context(), req.ReportID, req.ModeratorID,
		domain.ReportStatus(req.Decision))
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]*domain.ContentReport{"report": report})
}

func (s *Server) GetReportQueue(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.GetReportQueue"

	depth, err := s.moderation.QueueDepth(r.Context())
	if err != nil {
		s.handleServiceError(w, r, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]int{"depth": depth})
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", apperrors.ErrInvalidRequest, name)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", apperrors.ErrInvalidRequest, name)
	}

	return v, nil
}

// respond is a helper function to encode data to JSON and write it to the response.
// It centralizes setting the Content-Type header and writing the status code.
func (s *Server) respond(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.Error("failed to encode response", sl.Err(err))
		}
	}
}

// respondError is a convenience wrapper around respond for sending simple error messages.
func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}

// decodeAndValidate is a helper that deserializes a JSON request body into a struct
// and then runs validation checks on it.
func (s *Server) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := s.decode(r.Body, v); err != nil {
		return err
	}

	if err := validation.ValidateStruct(v); err != nil {
		return err
	}

	return nil
}

// decode is a helper function to decode a JSON request body.
func (s *Server) decode(body io.ReadCloser, v interface{}) error {
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	return nil
}

// handleServiceError provides centralized error handling for all HTTP handlers.
// It logs the internal error and maps it to a user-friendly HTTP response.
func (s *Server) handleServiceError(w http.ResponseWriter, _ *http.Request, op string, err error) {
	log := s.log.With(slog.String("op", op))
	log.Error("service error occurred", sl.Err(err))

	var (
		assignmentConflictErr *apperrors.AssignmentConflictError
		reportConflictErr     *apperrors.ReportConflictError
		validationErr         *validation.ValidationError
	)

	switch {
	case errors.As(err, &validationErr):
		wrappedErr := fmt.Errorf("%w: %s", apperrors.ErrValidation, validationErr.Error())
		s.respondError(w, http.StatusBadRequest, wrappedErr.Error())
	case errors.Is(err, apperrors.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, "invalid request body")
	case errors.Is(err, apperrors.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrSelfReport):
		s.respondError(w, http.StatusBadRequest, "reporting your own content is not allowed")
	case errors.Is(err, apperrors.ErrUnknownUser):
		s.respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, apperrors.ErrContentNotFound):
		s.respondError(w, http.StatusNotFound, "content not found")
	case errors.Is(err, apperrors.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, apperrors.ErrForbidden), errors.Is(err, apperrors.ErrNotParticipant):
		s.respondError(w, http.StatusForbidden, "operation not permitted")
	case errors.Is(err, apperrors.ErrQuestionClosed):
		s.respondError(w, http.StatusConflict, "question is closed")
	case errors.As(err, &assignmentConflictErr):
		s.respondError(w, http.StatusConflict,
			fmt.Sprintf("assignment is already %s", assignmentConflictErr.Current))
	case errors.As(err, &reportConflictErr):
		s.respondError(w, http.StatusConflict,
			fmt.Sprintf("report is already %s", reportConflictErr.Current))
	case errors.Is(err, apperrors.ErrAlreadyExists), errors.Is(err, apperrors.ErrConflict):
		s.respondError(w, http.StatusConflict, "resource state changed, retry the request")
	default:
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

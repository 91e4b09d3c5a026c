package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/domain/user"
	"trip-dispatch/internal/general/jwt"
	"trip-dispatch/internal/general/logger"
	"trip-dispatch/internal/ports"
	"trip-dispatch/internal/realtime"
	"trip-dispatch/internal/software/dispatch/service"

	"github.com/jackc/pgx/v5/pgconn"
)

// DispatchHTTPHandler adapts HTTP requests to the DispatchService.
type DispatchHTTPHandler struct {
	svc     ports.DispatchService
	logger  *logger.Logger
	auth    *jwt.Manager
	gateway *realtime.Gateway
}

// NewDispatchHTTPHandler wires an HTTP handler around the DispatchService.
func NewDispatchHTTPHandler(
	svc ports.DispatchService,
	logger *logger.Logger,
	auth *jwt.Manager,
	gateway *realtime.Gateway,
) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{svc: svc, logger: logger, auth: auth, gateway: gateway}
}

// RegisterRoutes mounts dispatch endpoints on the provided mux.
func (handler *DispatchHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	// client surface
	mux.HandleFunc("POST /trips",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient)(handler.handleSubmitTrip),
	)
	mux.HandleFunc("GET /sessions/{session_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient)(handler.handlePollSession),
	)
	mux.HandleFunc("POST /sessions/{session_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleClient)(handler.handleCancelSession),
	)

	// worker surface
	mux.HandleFunc("POST /trips/{trip_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleDelivery)(handler.handleAcceptTrip),
	)
	mux.HandleFunc("POST /trips/{trip_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleDelivery)(handler.handleWorkerCancel),
	)
	mux.HandleFunc("POST /trips/{trip_id}/status",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleDelivery)(handler.handleUpdateStatus),
	)
	mux.HandleFunc("POST /trips/{trip_id}/complete",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleDelivery)(handler.handleCompleteTrip),
	)
	mux.HandleFunc("POST /workers/online",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleDelivery)(handler.handleGoOnline),
	)
	mux.HandleFunc("POST /workers/offline",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleDelivery)(handler.handleGoOffline),
	)

	// realtime endpoint authenticates itself via the identify frame
	mux.HandleFunc("GET /ws", handler.gateway.Connect)

	mux.HandleFunc("GET /health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

// ----- shared response helpers -----

type errBody struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (handler *DispatchHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends the error envelope with a code and message.
func (handler *DispatchHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, code, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	handler.jsonResponse(ctx, w, status, errBody{Success: false, ErrorCode: code, Message: msg})
}

// serviceError maps service sentinels onto HTTP status and error codes.
func (handler *DispatchHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrAlreadyTaken):
		handler.httpError(ctx, w, http.StatusConflict, "ALREADY_TAKEN", err.Error(), err)
	case errors.Is(err, service.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, "NOT_FOUND", err.Error(), err)
	case errors.Is(err, service.ErrWorkerNotEligible):
		handler.httpError(ctx, w, http.StatusForbidden, "NOT_ELIGIBLE", err.Error(), err)
	case errors.Is(err, service.ErrWrongState):
		handler.httpError(ctx, w, http.StatusConflict, "WRONG_STATE", err.Error(), err)
	case errors.Is(err, service.ErrValidation):
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), err)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			handler.httpError(ctx, w, http.StatusInternalServerError, "INTERNAL", "database error", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "INTERNAL", "internal error", err)
	}
}

// decodeJSON applies the shared body rules: JSON content type, 1 MiB cap,
// unknown fields rejected.
func (handler *DispatchHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "VALIDATION_FAILED", "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "VALIDATION_FAILED", "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *DispatchHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ----- token + health -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *DispatchHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "user_id is required", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "failed to generate token: "+err.Error(), err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	})
}

func (handler *DispatchHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

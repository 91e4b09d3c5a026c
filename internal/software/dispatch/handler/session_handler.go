package handler

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ----- Handler: GET /sessions/{session_id} -----

func (handler *DispatchHTTPHandler) handlePollSession(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if sessionID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "session_id is required", nil)
		return
	}

	res, err := handler.svc.PollSession(ctx, sessionID)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

// ----- Handler: POST /sessions/{session_id}/cancel -----

func (handler *DispatchHTTPHandler) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if sessionID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "session_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.CancelSession(ctxWithTimeout, sessionID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

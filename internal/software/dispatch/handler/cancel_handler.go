package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/general/jwt"
)

type workerCancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ----- Handler: POST /trips/{trip_id}/cancel -----

func (handler *DispatchHTTPHandler) handleWorkerCancel(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	tripID := strings.TrimSpace(r.PathValue("trip_id"))
	if tripID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "trip_id is required", nil)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth claims", errors.New("no claims"))
		return
	}
	workerID := strings.TrimSpace(claims.Subject)

	// reason is optional; an empty body is fine
	var req workerCancelRequest
	if r.ContentLength > 0 {
		if !handler.decodeJSON(ctx, w, r, &req) {
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "cancelled_by_worker"
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.WorkerCancel(ctxWithTimeout, workerID, tripID, reason)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

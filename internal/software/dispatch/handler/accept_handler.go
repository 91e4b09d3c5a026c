package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/general/jwt"
)

// ----- Handler: POST /trips/{trip_id}/accept -----

// The accept endpoint is the contention point of the whole system: every
// worker that saw the broadcast may hit it at once. The service resolves the
// race; this layer only authenticates and shapes the response.
func (handler *DispatchHTTPHandler) handleAcceptTrip(w http.ResponseWriter, r *http.Request) {
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

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.AttemptAccept(ctxWithTimeout, workerID, tripID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

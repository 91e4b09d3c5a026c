package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/general/jwt"
	"trip-dispatch/internal/ports"
)

type updateStatusRequest struct {
	State string `json:"state"` // en_route_pickup | arrived_pickup | in_progress
}

// ----- Handler: POST /trips/{trip_id}/status -----

func (handler *DispatchHTTPHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req updateStatusRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	target, err := trip.ParseState(req.State)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "state must be one of: en_route_pickup, arrived_pickup, in_progress", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.UpdateStatus(ctxWithTimeout, ports.UpdateStatusInput{
		WorkerID: strings.TrimSpace(claims.Subject),
		TripID:   tripID,
		Target:   target,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

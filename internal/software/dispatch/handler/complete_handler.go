package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/general/jwt"
	"trip-dispatch/internal/ports"
)

type completeTripRequest struct {
	ActualDistanceKM float64 `json:"actual_distance_km"`
}

// ----- Handler: POST /trips/{trip_id}/complete -----

func (handler *DispatchHTTPHandler) handleCompleteTrip(w http.ResponseWriter, r *http.Request) {
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

	var req completeTripRequest
	if r.ContentLength > 0 {
		if !handler.decodeJSON(ctx, w, r, &req) {
			return
		}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.CompleteTrip(ctxWithTimeout, ports.CompleteTripInput{
		WorkerID:         strings.TrimSpace(claims.Subject),
		TripID:           tripID,
		ActualDistanceKM: req.ActualDistanceKM,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

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

// --- Request DTO (HTTP boundary) ---

type stopRequest struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type submitTripRequest struct {
	ClientID       string        `json:"client_id"`
	Kind           string        `json:"kind"`           // ride | delivery
	PaymentMethod  string        `json:"payment_method"` // CASH | WAVE | ORANGE_MONEY
	PickupAddress  string        `json:"pickup_address"`
	PickupLat      float64       `json:"pickup_lat"`
	PickupLng      float64       `json:"pickup_lng"`
	DropoffAddress string        `json:"dropoff_address"`
	DropoffLat     float64       `json:"dropoff_lat"`
	DropoffLng     float64       `json:"dropoff_lng"`
	Stops          []stopRequest `json:"stops,omitempty"`
	Fare           *float64      `json:"fare,omitempty"`
	SilentMode     bool          `json:"silent_mode,omitempty"`
}

// ----- Handler: POST /trips -----

func (handler *DispatchHTTPHandler) handleSubmitTrip(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req submitTripRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	// obtain the JWT claims
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth claims", errors.New("no claims"))
		return
	}

	// fill or verify client_id against the token subject
	sub := strings.TrimSpace(claims.Subject)
	if strings.TrimSpace(req.ClientID) == "" {
		req.ClientID = sub
	} else if req.ClientID != sub {
		handler.httpError(ctx, w, http.StatusForbidden, "NOT_ELIGIBLE", "client_id does not match token subject", errors.New("client/token mismatch"))
		return
	}

	kind, err := trip.ParseKind(req.Kind)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "kind must be one of: ride, delivery", err)
		return
	}
	pm, err := trip.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", "payment_method must be one of: CASH, WAVE, ORANGE_MONEY", err)
		return
	}

	in := ports.SubmitTripInput{
		ClientID:       strings.TrimSpace(req.ClientID),
		Kind:           kind,
		PaymentMethod:  pm,
		PickupAddress:  strings.TrimSpace(req.PickupAddress),
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		DropoffAddress: strings.TrimSpace(req.DropoffAddress),
		DropoffLat:     req.DropoffLat,
		DropoffLng:     req.DropoffLng,
		Fare:           req.Fare,
		SilentMode:     req.SilentMode,
	}
	for _, st := range req.Stops {
		in.Stops = append(in.Stops, ports.StopInput{
			Address: strings.TrimSpace(st.Address),
			Lat:     st.Lat,
			Lng:     st.Lng,
		})
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.SubmitTrip(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	ctxWithTimeout = handler.logger.WithTripID(ctxWithTimeout, res.TripID)

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, res)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/general/jwt"
)

// ----- Handlers: POST /workers/online, POST /workers/offline -----

func (handler *DispatchHTTPHandler) handleGoOnline(w http.ResponseWriter, r *http.Request) {
	handler.setAvailability(w, r, true)
}

func (handler *DispatchHTTPHandler) handleGoOffline(w http.ResponseWriter, r *http.Request) {
	handler.setAvailability(w, r, false)
}

func (handler *DispatchHTTPHandler) setAvailability(w http.ResponseWriter, r *http.Request, available bool) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth claims", errors.New("no claims"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.SetWorkerAvailability(ctxWithTimeout, strings.TrimSpace(claims.Subject), available)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

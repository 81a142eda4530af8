package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/hotel-payments/internal/common"
)

// Handler exposes HTTP endpoints for checkout session creation and status polling.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type checkoutReq struct {
	BookingID string `json:"bookingId" validate:"required"`
}

type checkoutResp struct {
	ClientSecret string `json:"clientSecret"`
}

// CheckoutSession creates an embedded checkout session for a booking.
func (h *Handler) CheckoutSession(w http.ResponseWriter, r *http.Request) {
	const failure = "Error creating checkout session"
	if h == nil || h.Svc == nil {
		common.JSONMessage(w, http.StatusInternalServerError, failure, errors.New("payment handler unavailable"))
		return
	}
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONMessage(w, http.StatusBadRequest, failure, errors.New("invalid body"))
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if err := h.validator().Struct(req); err != nil {
		common.JSONMessage(w, http.StatusBadRequest, failure, errors.New("bookingId is required"))
		return
	}
	sess, err := h.Svc.CreateCheckoutSession(r.Context(), req.BookingID)
	if err != nil {
		h.Logger.Error().Err(err).Str("code", common.CodeOf(err)).Str("booking_id", req.BookingID).Msg("create checkout session")
		common.JSONMessage(w, common.StatusOf(err, http.StatusInternalServerError), failure, err)
		return
	}
	common.JSON(w, http.StatusOK, checkoutResp{ClientSecret: sess.ClientSecret})
}

// SessionStatus reports the gateway and booking state behind a checkout session.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	const failure = "Error retrieving session status"
	if h == nil || h.Svc == nil {
		common.JSONMessage(w, http.StatusInternalServerError, failure, errors.New("payment handler unavailable"))
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	view, err := h.Svc.SessionStatus(r.Context(), sessionID)
	if err != nil {
		h.Logger.Error().Err(err).Str("code", common.CodeOf(err)).Str("session_id", sessionID).Msg("session status")
		common.JSONMessage(w, common.StatusOf(err, http.StatusInternalServerError), failure, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}

var defaultValidate = validator.New()

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidate
}

package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-lock/internal/queue"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body,
// prefixed with "sha256=".
const SignatureHeader = "X-Signature"

// PaymentHandler processes a payment outcome.
type PaymentHandler interface {
	Handle(ctx context.Context, ev queue.PaymentEvent) error
}

// WebhookHandler receives payment outcomes from the payment provider.
type WebhookHandler struct {
	payments PaymentHandler
	secret   []byte
}

// NewWebhookHandler returns a handler that verifies signatures when
// secret is non-empty.
func NewWebhookHandler(payments PaymentHandler, secret string) *WebhookHandler {
	if payments == nil {
		panic("nil payment handler passed to NewWebhookHandler")
	}
	return &WebhookHandler{payments: payments, secret: []byte(secret)}
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(header string, body []byte) bool {
	if len(h.secret) == 0 {
		return true
	}
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(header), []byte(Sign(h.secret, body)))
}

// Payment handles POST /v1/webhooks/payments.  A 5xx answer asks the
// provider to redeliver; finalization is idempotent so that is safe.
func (h *WebhookHandler) Payment(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		return respond(c, http.StatusBadRequest, "unreadable body", nil)
	}
	if !h.verify(c.Request().Header.Get(SignatureHeader), body) {
		return respond(c, http.StatusUnauthorized, "invalid signature", nil)
	}
	ev, err := queue.DecodePaymentEvent(body)
	if err != nil {
		return respond(c, http.StatusBadRequest, err.Error(), nil)
	}
	if err := h.payments.Handle(c.Request().Context(), ev); err != nil {
		if errors.Is(err, seatlock.ErrInvalidArgument) || errors.Is(err, seatlock.ErrNotOwner) {
			// redelivery cannot fix these
			c.Logger().Warnf("payment event %s rejected: %v", ev.ID, err)
			return respond(c, http.StatusUnprocessableEntity, err.Error(), nil)
		}
		c.Logger().Errorf("payment event %s: %v", ev.ID, err)
		return respond(c, http.StatusServiceUnavailable, "payment event not processed, retry", nil)
	}
	return respond(c, http.StatusOK, "processed", echo.Map{"id": ev.ID})
}

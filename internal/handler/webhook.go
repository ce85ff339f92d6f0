package handler

import (
	"errors"
	"io"
	"net/http"

	"donationpay/internal/gateway"
	"donationpay/internal/service"
	"donationpay/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// MidtransCallback receives Midtrans HTTP notifications.
// POST /api/v1/transaction/callback
func (h *Handler) MidtransCallback(c *gin.Context) {
	h.callback(c, gateway.ProviderMidtrans)
}

// TripayCallback receives callbacks from the older Tripay integration.
// POST /api/v1/transaction/callback/tripay
func (h *Handler) TripayCallback(c *gin.Context) {
	h.callback(c, gateway.ProviderTripay)
}

// callback answers in the status codes gateways act on: 2xx stops
// redelivery, 4xx means the request itself is bad, and 5xx asks the gateway
// to try again later.
func (h *Handler) callback(c *gin.Context, provider string) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.ParamError(c, "unreadable notification body")
		return
	}

	result, err := h.svc.Reconcile.HandleNotification(c.Request.Context(), provider, body, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPayload),
			errors.Is(err, service.ErrInvalidSignature),
			errors.Is(err, service.ErrUnknownProvider):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrTransactionNotFound):
			response.NotFound(c, err.Error())
		default:
			response.ServerError(c, "notification could not be processed")
		}
		return
	}

	message := "Notification processed"
	if result.Disposition == service.DispositionAlreadyProcessed {
		message = "Transaction already processed"
	}
	response.SuccessMessage(c, message, result)
}

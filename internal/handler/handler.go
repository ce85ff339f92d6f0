package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"donationpay/internal/service"
	"donationpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler holds every service the HTTP API calls.
type Handler struct {
	svc    *service.Services
	checks map[string]ReadinessCheck
}

func NewHandler(svc *service.Services, checks map[string]ReadinessCheck) *Handler {
	return &Handler{svc: svc, checks: checks}
}

// fail maps a service error to an HTTP answer. Unknown errors are logged
// and answered with a generic 500.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *service.ValidationError
	var rerr *service.ReferralInvalidError

	switch {
	case errors.As(err, &verr):
		response.ValidationError(c, "Validation failed", verr.Fields)
	case errors.As(err, &rerr):
		response.Error(c, http.StatusBadRequest, rerr.Reason)
	case errors.Is(err, service.ErrInvalidAmount):
		response.ValidationError(c, "Validation failed", map[string]string{"amount": err.Error()})
	case errors.Is(err, service.ErrReferralCodeTaken):
		response.ValidationError(c, "Validation failed", map[string]string{"code": err.Error()})
	case errors.Is(err, service.ErrCampaignNotFound),
		errors.Is(err, service.ErrDonationNotFound),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, service.ErrReferralNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrCampaignNotActive),
		errors.Is(err, service.ErrDonationNotPending):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrReferralExhausted),
		errors.Is(err, service.ErrReferralInUse):
		response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrLockTimeout),
		errors.Is(err, service.ErrGatewayUnavailable):
		response.Unavailable(c, err.Error())
	default:
		log.Printf("[HTTP] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		response.ServerError(c, "internal server error")
	}
}

package handler

import (
	"strings"

	"donationpay/internal/service"
	"donationpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Donate opens a donation for a campaign.
// POST /api/v1/campaign/:slug/donation
func (h *Handler) Donate(c *gin.Context) {
	var req service.DonateRequest
	if !bind(c, &req) {
		return
	}
	req.CampaignKey = c.Param("slug")
	req.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	resp, err := h.svc.Donation.Donate(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if resp.Replayed {
		response.SuccessMessage(c, "Donation already created", resp)
		return
	}
	response.Created(c, "Donation created", resp)
}

// GET /api/v1/campaign/:slug
func (h *Handler) GetCampaign(c *gin.Context) {
	summary, err := h.svc.Campaign.Summary(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, summary)
}

// GetTotalDonation reports what all campaigns have collected together.
// GET /api/v1/campaign/total-donation
func (h *Handler) GetTotalDonation(c *gin.Context) {
	total, err := h.svc.Campaign.Total(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, total)
}

// GET /api/v1/transaction/invoice/:id
func (h *Handler) GetInvoice(c *gin.Context) {
	inv, err := h.svc.Transaction.Invoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, inv)
}

// GET /api/v1/donation/:id/invoice
func (h *Handler) GetDonationInvoice(c *gin.Context) {
	inv, err := h.svc.Transaction.InvoiceByDonation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, inv)
}

// GET /api/v1/transaction/status/:id
func (h *Handler) GetTransactionStatus(c *gin.Context) {
	status, err := h.svc.Transaction.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, status)
}

// ValidateReferralCode previews a code before the donor submits.
// GET /api/v1/referral-code/validate/:code?event_id=&amount=
func (h *Handler) ValidateReferralCode(c *gin.Context) {
	var eventID *string
	if v, ok := c.GetQuery("event_id"); ok && v != "" {
		eventID = &v
	}

	amount := decimal.Zero
	if raw := c.Query("amount"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			response.ValidationError(c, "Validation failed", map[string]string{"amount": "amount must be a number"})
			return
		}
		amount = parsed
	}

	preview, err := h.svc.Referral.Preview(c.Request.Context(), c.Param("code"), eventID, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessMessage(c, "Referral code is valid", preview)
}

package handler

import (
	"strconv"

	"donationpay/internal/repository"
	"donationpay/internal/service"
	"donationpay/pkg/response"

	"github.com/gin-gonic/gin"
)

type pageData struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

// GET /api/v1/admin/donations/pending
func (h *Handler) ListPendingDonations(c *gin.Context) {
	page, size := pageParams(c)
	items, total, err := h.svc.Donation.ListPending(c.Request.Context(), page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, pageData{Items: items, Total: total, Page: page, PageSize: size})
}

// GET /api/v1/admin/donations?status=&campaign_id=
func (h *Handler) ListDonations(c *gin.Context) {
	page, size := pageParams(c)
	filter := repository.DonationFilter{
		Status:     c.Query("status"),
		CampaignID: c.Query("campaign_id"),
		Page:       page,
		PageSize:   size,
	}
	items, total, err := h.svc.Donation.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, pageData{Items: items, Total: total, Page: page, PageSize: size})
}

// GET /api/v1/admin/donations/:id
func (h *Handler) GetDonation(c *gin.Context) {
	donation, err := h.svc.Donation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, donation)
}

// DeleteDonation removes a donation. Deleting a paid donation takes its
// amount back off the campaign total.
// DELETE /api/v1/admin/donations/:id
func (h *Handler) DeleteDonation(c *gin.Context) {
	donation, err := h.svc.Donation.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessMessage(c, "Donation deleted", donation)
}

// ApproveDonation marks a pending donation paid after an offline transfer
// was checked by hand.
// POST /api/v1/admin/donations/:id/approve
func (h *Handler) ApproveDonation(c *gin.Context) {
	donation, err := h.svc.Donation.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessMessage(c, "Donation approved", donation)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// POST /api/v1/admin/donations/:id/reject
func (h *Handler) RejectDonation(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	donation, err := h.svc.Donation.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessMessage(c, "Donation rejected", donation)
}

// CancelDonation withdraws a pending donation when the donor asks support to.
// POST /api/v1/admin/donations/:id/cancel
func (h *Handler) CancelDonation(c *gin.Context) {
	donation, err := h.svc.Donation.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessMessage(c, "Donation cancelled", donation)
}

// AuditCampaign compares the cached collected amount with the paid
// donations. It never repairs; that is left to the audit command.
// GET /api/v1/admin/campaigns/:id/audit
func (h *Handler) AuditCampaign(c *gin.Context) {
	report, err := h.svc.Campaign.Audit(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, report)
}

// GET /api/v1/admin/transactions/:id/webhooks
func (h *Handler) ListWebhookEvents(c *gin.Context) {
	events, err := h.svc.Transaction.WebhookEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, events)
}

// GET /api/v1/admin/referral-codes?search=&is_active=&event_id=
func (h *Handler) ListReferralCodes(c *gin.Context) {
	page, size := pageParams(c)
	filter := repository.ReferralCodeFilter{
		Search:   c.Query("search"),
		Page:     page,
		PageSize: size,
	}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.ValidationError(c, "Validation failed", map[string]string{"is_active": "is_active must be true or false"})
			return
		}
		filter.IsActive = &active
	}
	if v := c.Query("event_id"); v != "" {
		filter.EventID = &v
	}

	items, total, err := h.svc.Referral.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, pageData{Items: items, Total: total, Page: page, PageSize: size})
}

// POST /api/v1/admin/referral-codes
func (h *Handler) CreateReferralCode(c *gin.Context) {
	var in service.ReferralCodeInput
	if !bind(c, &in) {
		return
	}
	code, err := h.svc.Referral.Create(c.Request.Context(), &in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, "Referral code created", code)
}

// GET /api/v1/admin/referral-codes/:id
func (h *Handler) GetReferralCode(c *gin.Context) {
	code, err := h.svc.Referral.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, code)
}

// PUT /api/v1/admin/referral-codes/:id
func (h *Handler) UpdateReferralCode(c *gin.Context) {
	var in service.ReferralCodeInput
	if !bind(c, &in) {
		return
	}
	code, err := h.svc.Referral.Update(c.Request.Context(), c.Param("id"), &in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessMessage(c, "Referral code updated", code)
}

// DELETE /api/v1/admin/referral-codes/:id
func (h *Handler) DeleteReferralCode(c *gin.Context) {
	if err := h.svc.Referral.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessMessage(c, "Referral code deleted", nil)
}

// PATCH /api/v1/admin/referral-codes/:id/toggle-active
func (h *Handler) ToggleReferralCode(c *gin.Context) {
	code, err := h.svc.Referral.ToggleActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	message := "Referral code deactivated"
	if code.IsActive {
		message = "Referral code activated"
	}
	response.SuccessMessage(c, message, code)
}

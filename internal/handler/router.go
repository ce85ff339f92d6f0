package handler

import (
	"donationpay/internal/config"
	"donationpay/pkg/response"

	"github.com/gin-gonic/gin"
)

func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	// Gateways call us directly; client IPs come from the socket only.
	_ = r.SetTrustedProxies(nil)

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		transaction := api.Group("/transaction")
		{
			transaction.POST("/callback", h.MidtransCallback)
			transaction.POST("/callback/tripay", h.TripayCallback)
			transaction.GET("/invoice/:id", h.GetInvoice)
			transaction.GET("/status/:id", h.GetTransactionStatus)
		}

		campaign := api.Group("/campaign")
		{
			campaign.GET("/total-donation", h.GetTotalDonation)
			campaign.GET("/:slug", h.GetCampaign)
			campaign.POST("/:slug/donation", h.Donate)
		}

		donation := api.Group("/donation")
		{
			donation.GET("/:id/invoice", h.GetDonationInvoice)
		}

		api.GET("/referral-code/validate/:code", h.ValidateReferralCode)

		admin := api.Group("/admin", AdminAuth(cfg.Admin.Token))
		{
			admin.GET("/donations", h.ListDonations)
			admin.GET("/donations/pending", h.ListPendingDonations)
			admin.GET("/donations/:id", h.GetDonation)
			admin.DELETE("/donations/:id", h.DeleteDonation)
			admin.POST("/donations/:id/approve", h.ApproveDonation)
			admin.POST("/donations/:id/reject", h.RejectDonation)
			admin.POST("/donations/:id/cancel", h.CancelDonation)
			admin.GET("/campaigns/:id/audit", h.AuditCampaign)
			admin.GET("/transactions/:id/webhooks", h.ListWebhookEvents)

			codes := admin.Group("/referral-codes")
			{
				codes.GET("", h.ListReferralCodes)
				codes.POST("", h.CreateReferralCode)
				codes.GET("/:id", h.GetReferralCode)
				codes.PUT("/:id", h.UpdateReferralCode)
				codes.DELETE("/:id", h.DeleteReferralCode)
				codes.PATCH("/:id/toggle-active", h.ToggleReferralCode)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	return r
}

package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		// 外部系统推送的事件
		events := api.Group("/events")
		{
			events.POST("/user-signed-up", h.UserSignedUp)
			events.POST("/order-completed", h.OrderCompleted)
		}

		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetWalletBalance)
			wallet.GET("/ledger", h.ListLedgerEntries)
			wallet.POST("/reconcile", h.ReconcileWallet)
			wallet.POST("/release-freeze", h.ReleaseWalletFreeze)
		}

		api.GET("/commission/breakdown", h.GetCommissionBreakdown)
		api.GET("/referral/stats", h.GetReferralStats)

		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("/create", h.CreateWithdrawal)
			withdrawal.POST("/update-status", h.UpdateWithdrawalStatus)
			withdrawal.GET("/detail", h.GetWithdrawal)
			withdrawal.GET("/list", h.ListWithdrawals)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

package handler

import (
	"iutility/internal/model"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires every route group:
//
//	/api/v1/purchase-*  API-key integrators, through the access gate
//	/api/v1/client/*    client portal, identity from the upstream auth layer
//	/api/v1/admin/*     operator dashboard
func SetupRouter(h *Handler, gate *AccessGate) *gin.Engine {
	r := gin.New()
	r.Use(LoggerMiddleware(), RecoveryMiddleware(), CORSMiddleware())

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")

	v1.POST("/purchase-airtime", gate.Middleware(model.ServiceAirtime), h.PurchaseAirtime)
	v1.POST("/purchase-cashpower", gate.Middleware(model.ServiceCashpower), h.PurchaseCashpower)

	client := v1.Group("/client", RequireClient())
	{
		client.GET("/wallet", h.GetWallet)
		client.GET("/wallet/transactions", h.ListWalletTransactions)

		client.POST("/topups", h.CreateTopUp)
		client.GET("/topups", h.ListOwnTopUps)
		client.DELETE("/topups/:id", h.DeleteTopUp)

		client.GET("/transactions", h.ListOwnTransactions)

		client.POST("/api-keys", h.IssueApiKey)
		client.GET("/api-keys", h.ListApiKeys)
		client.POST("/api-keys/:id/regenerate", h.RegenerateApiKey)
		client.DELETE("/api-keys/:id", h.RevokeApiKey)
	}

	admin := v1.Group("/admin", RequireAdmin())
	{
		admin.POST("/clients", h.CreateClient)
		admin.GET("/clients", h.ListClients)
		admin.PUT("/clients/:id/active", h.SetClientActive)

		admin.GET("/topups", h.ListTopUps)
		admin.POST("/topups/:id/approve", h.ApproveTopUp)
		admin.POST("/topups/:id/reject", h.RejectTopUp)
		admin.GET("/topups/:id/receipt", h.DownloadReceipt)

		admin.GET("/transactions", h.ListTransactions)
		admin.GET("/providers/balance", h.ProviderBalances)
	}

	return r
}

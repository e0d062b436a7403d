package handler

import (
	"errors"
	"path/filepath"
	"strconv"
	"time"

	"iutility/internal/model"
	"iutility/internal/provider"
	"iutility/internal/repository"
	"iutility/internal/service"
	"iutility/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handler carries the service layer into the HTTP surface. Listing endpoints
// read through the utility transaction repository directly; everything that
// mutates goes through a service.
type Handler struct {
	clients    *service.ClientService
	wallets    *service.WalletService
	purchases  *service.PurchaseService
	topups     *service.TopUpService
	apikeys    *service.ApiKeyService
	history    *repository.UtilityTransactionRepository
	registry   *provider.Registry
	receiptDir string
}

func NewHandler(
	clients *service.ClientService,
	wallets *service.WalletService,
	purchases *service.PurchaseService,
	topups *service.TopUpService,
	apikeys *service.ApiKeyService,
	history *repository.UtilityTransactionRepository,
	registry *provider.Registry,
	receiptDir string,
) *Handler {
	return &Handler{
		clients:    clients,
		wallets:    wallets,
		purchases:  purchases,
		topups:     topups,
		apikeys:    apikeys,
		history:    history,
		registry:   registry,
		receiptDir: receiptDir,
	}
}

func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// ---------- integrator endpoints ----------

type purchaseRequest struct {
	PhoneNumber string          `json:"phone_number"`
	MeterNumber string          `json:"meter_number"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Network     string          `json:"network"`
	Provider    string          `json:"provider"`
}

// PurchaseAirtime handles POST /purchase-airtime for API-key callers.
func (h *Handler) PurchaseAirtime(c *gin.Context) {
	h.purchase(c, model.ServiceAirtime)
}

// PurchaseCashpower handles POST /purchase-cashpower for API-key callers.
func (h *Handler) PurchaseCashpower(c *gin.Context) {
	h.purchase(c, model.ServiceCashpower)
}

func (h *Handler) purchase(c *gin.Context, serviceType string) {
	client, ok := ClientFromContext(c)
	if !ok {
		response.ServiceUnavailable(c)
		return
	}
	key, ok := ApiKeyFromContext(c)
	if !ok {
		response.ServiceUnavailable(c)
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body")
		return
	}

	out, err := h.purchases.Purchase(c.Request.Context(), &service.PurchaseInput{
		Client:      client,
		ApiKeyID:    key.ID,
		Type:        serviceType,
		PhoneNumber: req.PhoneNumber,
		MeterNumber: req.MeterNumber,
		Amount:      req.Amount,
		Network:     req.Network,
		Provider:    req.Provider,
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount),
			errors.Is(err, service.ErrInvalidDestination):
			response.ParamError(c, err.Error())
		default:
			// Insufficient balance, wallet state, provider failure: the
			// integrator sees one opaque body for all of them.
			response.ServiceUnavailable(c)
		}
		return
	}

	response.Success(c, "Purchase successful", out)
}

// ---------- client portal endpoints ----------

func (h *Handler) clientID(c *gin.Context) string {
	return c.GetHeader(clientIDHeader)
}

// GetWallet handles GET /client/wallet.
func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.wallets.GetWallet(c.Request.Context(), h.clientID(c))
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			response.NotFound(c, "wallet not found")
			return
		}
		response.ServerError(c, "failed to load wallet")
		return
	}
	response.Success(c, "OK", wallet)
}

// ListWalletTransactions handles GET /client/wallet/transactions.
func (h *Handler) ListWalletTransactions(c *gin.Context) {
	page, pageSize := pagination(c)
	entries, total, err := h.wallets.History(c.Request.Context(), h.clientID(c), page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to load wallet history")
		return
	}
	response.Success(c, "OK", gin.H{
		"items":     entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CreateTopUp handles POST /client/topups. Multipart: amount, payment_method,
// payment_reference, notes and the mandatory receipt file.
func (h *Handler) CreateTopUp(c *gin.Context) {
	amount, err := decimal.NewFromString(c.PostForm("amount"))
	if err != nil {
		response.ParamError(c, "amount must be a decimal number")
		return
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		response.ParamError(c, "a payment receipt file is required")
		return
	}

	// Stored under a generated name; the original name survives in the row.
	storedName := uuid.NewString() + filepath.Ext(fileHeader.Filename)
	storedPath := filepath.Join(h.receiptDir, storedName)
	if err := c.SaveUploadedFile(fileHeader, storedPath); err != nil {
		response.ServerError(c, "failed to store receipt")
		return
	}

	req, err := h.topups.Create(c.Request.Context(), h.clientID(c), amount,
		c.PostForm("payment_method"), c.PostForm("payment_reference"), c.PostForm("notes"),
		&service.ReceiptFile{
			FileName: fileHeader.Filename,
			FilePath: storedPath,
			FileSize: fileHeader.Size,
			MimeType: fileHeader.Header.Get("Content-Type"),
		})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount),
			errors.Is(err, service.ErrReceiptRequired):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "failed to create top-up request")
		}
		return
	}

	response.Created(c, "Top-up request submitted", req)
}

// ListOwnTopUps handles GET /client/topups.
func (h *Handler) ListOwnTopUps(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := repository.TopUpFilter{
		ClientID: h.clientID(c),
		Status:   c.Query("status"),
	}
	reqs, total, err := h.topups.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to load top-up requests")
		return
	}
	response.Success(c, "OK", gin.H{
		"items":     reqs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// DeleteTopUp handles DELETE /client/topups/:id. Pending requests only.
func (h *Handler) DeleteTopUp(c *gin.Context) {
	err := h.topups.Delete(c.Request.Context(), c.Param("id"), h.clientID(c))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTopUpNotFound):
			response.NotFound(c, "top-up request not found")
		case errors.Is(err, service.ErrWorkflowConflict):
			response.Conflict(c, "only pending requests can be withdrawn")
		default:
			response.ServerError(c, "failed to withdraw top-up request")
		}
		return
	}
	response.Success(c, "Top-up request withdrawn", nil)
}

// ListOwnTransactions handles GET /client/transactions.
func (h *Handler) ListOwnTransactions(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := repository.UtilityTransactionFilter{
		ClientID: h.clientID(c),
		Type:     c.Query("type"),
		Status:   c.Query("status"),
	}
	txns, total, err := h.history.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to load transactions")
		return
	}
	response.Success(c, "OK", gin.H{
		"items":     txns,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type issueKeyRequest struct {
	Name           string `json:"name" binding:"required"`
	Entitlement    string `json:"entitlement" binding:"required"`
	ExpiresAt      string `json:"expires_at"`
	IPRestrictions string `json:"ip_restrictions"`
}

// IssueApiKey handles POST /client/api-keys. The secret appears in this
// response and never again.
func (h *Handler) IssueApiKey(c *gin.Context) {
	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			response.ParamError(c, "expires_at must be RFC3339")
			return
		}
		expiresAt = &t
	}

	issued, err := h.apikeys.Issue(c.Request.Context(), h.clientID(c), req.Name, req.Entitlement, expiresAt, req.IPRestrictions)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEntitlement) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, "failed to issue API key")
		return
	}

	response.Created(c, "API key issued", gin.H{
		"api_key":    issued.Key,
		"secret_key": issued.SecretKey,
	})
}

// ListApiKeys handles GET /client/api-keys.
func (h *Handler) ListApiKeys(c *gin.Context) {
	keys, err := h.apikeys.List(c.Request.Context(), h.clientID(c))
	if err != nil {
		response.ServerError(c, "failed to load API keys")
		return
	}
	response.Success(c, "OK", keys)
}

// RegenerateApiKey handles POST /client/api-keys/:id/regenerate.
func (h *Handler) RegenerateApiKey(c *gin.Context) {
	id := c.Param("id")
	if !h.ownsKey(c, id) {
		return
	}
	issued, err := h.apikeys.Regenerate(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrApiKeyNotFound) {
			response.NotFound(c, "API key not found")
			return
		}
		response.ServerError(c, "failed to regenerate API key")
		return
	}
	response.Success(c, "API key regenerated", gin.H{
		"api_key":    issued.Key,
		"secret_key": issued.SecretKey,
	})
}

// RevokeApiKey handles DELETE /client/api-keys/:id.
func (h *Handler) RevokeApiKey(c *gin.Context) {
	id := c.Param("id")
	if !h.ownsKey(c, id) {
		return
	}
	if err := h.apikeys.Revoke(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrApiKeyNotFound) {
			response.NotFound(c, "API key not found")
			return
		}
		response.ServerError(c, "failed to revoke API key")
		return
	}
	response.Success(c, "API key revoked", nil)
}

// ownsKey rejects cross-tenant key access. Writes the response on failure.
func (h *Handler) ownsKey(c *gin.Context, keyID string) bool {
	keys, err := h.apikeys.List(c.Request.Context(), h.clientID(c))
	if err != nil {
		response.ServerError(c, "failed to load API keys")
		return false
	}
	for _, k := range keys {
		if k.ID == keyID {
			return true
		}
	}
	response.NotFound(c, "API key not found")
	return false
}

// ---------- admin endpoints ----------

func (h *Handler) adminID(c *gin.Context) string {
	return c.GetHeader(adminIDHeader)
}

type createClientRequest struct {
	Email               string          `json:"email" binding:"required,email"`
	Password            string          `json:"password" binding:"required,min=8"`
	ContactName         string          `json:"contact_name" binding:"required"`
	Plan                string          `json:"plan"`
	MonthlyQuota        int64           `json:"monthly_quota"`
	LowBalanceThreshold decimal.Decimal `json:"low_balance_threshold"`
}

// CreateClient handles POST /admin/clients. The wallet is created alongside.
func (h *Handler) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body")
		return
	}

	client, err := h.clients.Create(c.Request.Context(), req.Email, req.Password,
		req.ContactName, req.Plan, req.MonthlyQuota, req.LowBalanceThreshold)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.ServerError(c, "failed to create client")
		return
	}

	response.Created(c, "Client created", client)
}

// ListClients handles GET /admin/clients.
func (h *Handler) ListClients(c *gin.Context) {
	page, pageSize := pagination(c)
	clients, total, err := h.clients.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to load clients")
		return
	}
	response.Success(c, "OK", gin.H{
		"items":     clients,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetClientActive handles PUT /admin/clients/:id/active.
func (h *Handler) SetClientActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "active is required")
		return
	}

	if err := h.clients.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			response.NotFound(c, "client not found")
			return
		}
		response.ServerError(c, "failed to update client")
		return
	}
	response.Success(c, "Client updated", nil)
}

// ListTopUps handles GET /admin/topups.
func (h *Handler) ListTopUps(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := repository.TopUpFilter{
		ClientID: c.Query("client_id"),
		Status:   c.Query("status"),
	}
	reqs, total, err := h.topups.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to load top-up requests")
		return
	}
	response.Success(c, "OK", gin.H{
		"items":     reqs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type approveTopUpRequest struct {
	ApprovedAmount decimal.Decimal `json:"approved_amount" binding:"required"`
	AdminNotes     string          `json:"admin_notes"`
}

// ApproveTopUp handles POST /admin/topups/:id/approve. Credits the wallet.
func (h *Handler) ApproveTopUp(c *gin.Context) {
	var req approveTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "approved_amount is required")
		return
	}

	result, err := h.topups.Approve(c.Request.Context(), c.Param("id"), h.adminID(c), req.ApprovedAmount, req.AdminNotes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			response.ParamError(c, err.Error())
		case errors.Is(err, repository.ErrTopUpNotFound):
			response.NotFound(c, "top-up request not found")
		case errors.Is(err, service.ErrWorkflowConflict):
			response.Conflict(c, "top-up request is no longer pending")
		case errors.Is(err, repository.ErrWalletInactive):
			response.Error(c, 409, response.CodeWalletInactive, "client wallet is not active")
		default:
			response.ServerError(c, "failed to approve top-up request")
		}
		return
	}

	response.Success(c, "Top-up approved", gin.H{
		"request":     result.Request,
		"new_balance": result.NewBalance,
	})
}

type rejectTopUpRequest struct {
	RejectionReason string `json:"rejection_reason" binding:"required"`
	AdminNotes      string `json:"admin_notes"`
}

// RejectTopUp handles POST /admin/topups/:id/reject.
func (h *Handler) RejectTopUp(c *gin.Context) {
	var req rejectTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "rejection_reason is required")
		return
	}

	result, err := h.topups.Reject(c.Request.Context(), c.Param("id"), h.adminID(c), req.RejectionReason, req.AdminNotes)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTopUpNotFound):
			response.NotFound(c, "top-up request not found")
		case errors.Is(err, service.ErrWorkflowConflict):
			response.Conflict(c, "top-up request is no longer pending")
		default:
			response.ServerError(c, "failed to reject top-up request")
		}
		return
	}

	response.Success(c, "Top-up rejected", result)
}

// DownloadReceipt handles GET /admin/topups/:id/receipt.
func (h *Handler) DownloadReceipt(c *gin.Context) {
	blob, err := h.topups.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTopUpNotFound),
			errors.Is(err, service.ErrReceiptNotFound):
			response.NotFound(c, "receipt not found")
		default:
			response.ServerError(c, "failed to read receipt")
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+blob.FileName+`"`)
	c.Data(200, blob.MimeType, blob.Data)
}

// ListTransactions handles GET /admin/transactions with filters.
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pagination(c)

	filter := repository.UtilityTransactionFilter{
		ClientID: c.Query("client_id"),
		Type:     c.Query("type"),
		Status:   c.Query("status"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.ParamError(c, "from must be RFC3339")
			return
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.ParamError(c, "to must be RFC3339")
			return
		}
		filter.To = &t
	}

	txns, total, err := h.history.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to load transactions")
		return
	}
	response.Success(c, "OK", gin.H{
		"items":     txns,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ProviderBalances handles GET /admin/providers/balance. A provider that
// cannot be reached is reported, not hidden.
func (h *Handler) ProviderBalances(c *gin.Context) {
	type providerBalance struct {
		Provider string `json:"provider"`
		Balance  string `json:"balance,omitempty"`
		Currency string `json:"currency,omitempty"`
		Error    string `json:"error,omitempty"`
	}

	var balances []providerBalance
	for _, adapter := range h.registry.All() {
		result, err := adapter.CheckBalance(c.Request.Context())
		if err != nil {
			balances = append(balances, providerBalance{
				Provider: adapter.Name(),
				Error:    err.Error(),
			})
			continue
		}
		balances = append(balances, providerBalance{
			Provider: adapter.Name(),
			Balance:  result.Balance.StringFixed(2),
			Currency: result.Currency,
		})
	}

	response.Success(c, "OK", balances)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

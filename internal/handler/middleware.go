package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"time"

	"iutility/internal/model"
	"iutility/internal/service"
	"iutility/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const (
	apiKeyHeader   = "X-API-Key"
	adminIDHeader  = "X-Admin-ID"
	clientIDHeader = "X-Client-ID"

	ctxClientKey = "authClient"
	ctxApiKeyKey = "authApiKey"

	maxAuditPayload = 2048
)

// keyResolver and clientResolver are the repository slices the gate needs.
type keyResolver interface {
	GetByKey(ctx context.Context, keyToken string) (*model.ApiKey, error)
	TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error
}

type clientResolver interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
}

type usageWriter interface {
	Create(ctx context.Context, usage *model.ApiUsage) error
}

// AccessGate authenticates integrator calls by API key.
//
// Every rejection, whatever the cause, answers with the identical
// SERVICE_UNAVAILABLE body. Distinguishing "no such key" from "expired" from
// "wrong entitlement" would hand probers an enumeration oracle; the real
// reason reaches the client out-of-band instead.
type AccessGate struct {
	keys        keyResolver
	clients     clientResolver
	usage       usageWriter
	notifier    service.Notifier
	redisClient *redis.Client // optional key lookup cache
	cacheTTL    time.Duration
	enforceIP   bool
}

func NewAccessGate(keys keyResolver, clients clientResolver, usage usageWriter, notifier service.Notifier, redisClient *redis.Client, cacheTTL time.Duration, enforceIP bool) *AccessGate {
	return &AccessGate{
		keys:        keys,
		clients:     clients,
		usage:       usage,
		notifier:    notifier,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		enforceIP:   enforceIP,
	}
}

// Middleware admits requests whose key is entitled to requiredService.
func (g *AccessGate) Middleware(requiredService string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		keyToken := c.GetHeader(apiKeyHeader)
		if keyToken == "" {
			response.AbortServiceUnavailable(c)
			return
		}

		key, err := g.resolveKey(ctx, keyToken)
		if err != nil || key == nil {
			response.AbortServiceUnavailable(c)
			return
		}

		client, err := g.clients.GetByID(ctx, key.ClientID)
		if err != nil {
			response.AbortServiceUnavailable(c)
			return
		}

		if !client.IsActive {
			g.notifier.NotifyClientError(ctx, client.ID, "ACCOUNT_INACTIVE",
				"API call rejected: account is deactivated", auditContext(c, key))
			response.AbortServiceUnavailable(c)
			return
		}

		if key.IsExpired(time.Now()) {
			g.notifier.NotifyClientError(ctx, client.ID, "KEY_EXPIRED",
				"API call rejected: key has expired", auditContext(c, key))
			response.AbortServiceUnavailable(c)
			return
		}

		if !key.AllowsService(requiredService) {
			g.notifier.NotifyClientError(ctx, client.ID, "SERVICE_NOT_ENTITLED",
				"API call rejected: key is not entitled to "+requiredService, auditContext(c, key))
			response.AbortServiceUnavailable(c)
			return
		}

		if g.enforceIP && !key.AllowsIP(c.ClientIP()) {
			g.notifier.NotifyClientError(ctx, client.ID, "IP_NOT_ALLOWED",
				"API call rejected: caller IP is not on the allow-list", auditContext(c, key))
			response.AbortServiceUnavailable(c)
			return
		}

		c.Set(ctxClientKey, client)
		c.Set(ctxApiKeyKey, key)

		payload := captureBody(c)
		start := time.Now()

		c.Next()

		// Audit off the critical path. The request context is about to be
		// cancelled, so the goroutine gets its own.
		latency := time.Since(start).Milliseconds()
		status := c.Writer.Status()
		endpoint := c.FullPath()
		method := c.Request.Method
		ip := c.ClientIP()

		go func() {
			auditCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := g.keys.TouchLastUsed(auditCtx, key.ID, start); err != nil {
				log.Printf("[AccessGate] touch last_used failed: key=%s err=%v", key.ID, err)
			}
			usage := &model.ApiUsage{
				ApiKeyID:     key.ID,
				ClientID:     client.ID,
				Endpoint:     endpoint,
				Method:       method,
				StatusCode:   status,
				ResponseTime: latency,
				IPAddress:    ip,
				Payload:      payload,
			}
			if err := g.usage.Create(auditCtx, usage); err != nil {
				log.Printf("[AccessGate] usage write failed: key=%s err=%v", key.ID, err)
			}
		}()
	}
}

// resolveKey looks the key up, through the Redis cache when configured. Only
// active keys are cached, and only briefly, so revocation still bites.
func (g *AccessGate) resolveKey(ctx context.Context, keyToken string) (*model.ApiKey, error) {
	cacheKey := "apikey:" + keyToken

	if g.redisClient != nil {
		if raw, err := g.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var key model.ApiKey
			if err := json.Unmarshal([]byte(raw), &key); err == nil {
				return &key, nil
			}
		}
	}

	key, err := g.keys.GetByKey(ctx, keyToken)
	if err != nil {
		return nil, err
	}

	if g.redisClient != nil {
		if raw, err := json.Marshal(key); err == nil {
			g.redisClient.Set(ctx, cacheKey, raw, g.cacheTTL)
		}
	}
	return key, nil
}

func auditContext(c *gin.Context, key *model.ApiKey) map[string]interface{} {
	return map[string]interface{}{
		"endpoint": c.FullPath(),
		"ip":       c.ClientIP(),
		"key_id":   key.ID,
	}
}

// captureBody reads and restores the request body so handlers still see it.
func captureBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditPayload))
	if err != nil {
		return ""
	}
	rest, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(append(raw, rest...)))
	return string(raw)
}

// ClientFromContext returns the authenticated client set by the gate.
func ClientFromContext(c *gin.Context) (*model.Client, bool) {
	v, ok := c.Get(ctxClientKey)
	if !ok {
		return nil, false
	}
	client, ok := v.(*model.Client)
	return client, ok
}

// ApiKeyFromContext returns the authenticated key set by the gate.
func ApiKeyFromContext(c *gin.Context) (*model.ApiKey, bool) {
	v, ok := c.Get(ctxApiKeyKey)
	if !ok {
		return nil, false
	}
	key, ok := v.(*model.ApiKey)
	return key, ok
}

// RequireAdmin trusts the admin identity placed in the header by the
// upstream auth layer.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(adminIDHeader) == "" {
			c.AbortWithStatusJSON(401, gin.H{"success": false, "message": "admin identity required"})
			return
		}
		c.Next()
	}
}

// RequireClient trusts the client identity placed in the header by the
// upstream auth layer.
func RequireClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(clientIDHeader) == "" {
			c.AbortWithStatusJSON(401, gin.H{"success": false, "message": "client identity required"})
			return
		}
		c.Next()
	}
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware keeps a handler panic from killing the process.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"success": false,
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware allows browser calls from the dashboard and portal.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-Key, X-Admin-ID, X-Client-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

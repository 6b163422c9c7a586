package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/export"
	"pdvledger/backend/internal/logger"
	"pdvledger/backend/internal/service"
	"pdvledger/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	pinLimiter    *attemptLimiter
	log           *logger.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, log *logger.Logger) *API {
	if log == nil {
		log = logger.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		log:           log.With("component", "httpapi"),
	}
}

func (a *API) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(a.log), securityHeaders(), corsMiddleware(a.allowedOrigin))

	router.GET("/healthz", a.handleHealth)

	api := router.Group("/api/v1")
	api.Use(a.requireAuth())
	{
		api.GET("/payment-types", a.handlePaymentTypes)

		api.POST("/sales", a.handleCreateSale)
		api.GET("/sales/interval", a.handleSalesInInterval)
		api.GET("/sales/interval/items", a.handleItemsInInterval)
		api.GET("/sales/interval/payments", a.handlePaymentsInInterval)
		api.GET("/sales/interval/summary", a.handleSummaryInInterval)
		api.GET("/sales/interval/export", a.handleExportInterval)
		api.GET("/sales/:id", a.handleGetSale)
		api.GET("/sales/:id/items", a.handleGetSaleItems)
		api.GET("/sales/:id/payments", a.handleGetSalePayments)
		api.GET("/sales/:id/history", a.handleSaleHistory)
		api.POST("/sales/:id/cancel", a.handleCancelSale)

		api.GET("/resumes/today", a.handleTodayResumes)
		api.GET("/settings", a.handleGetSettings)

		api.GET("/products", a.handleListProducts)
		api.GET("/products/code/:code", a.handleGetProductByCode)
		api.GET("/products/:id", a.handleGetProduct)
	}

	managed := router.Group("/api/v1")
	managed.Use(a.requireAuth(RoleManager, RoleAdmin))
	{
		managed.POST("/resumes", a.handleRecordResume)
		managed.POST("/resumes/purge", a.handlePurgeResumes)
		managed.PUT("/settings", a.handleSaveSettings)

		managed.POST("/products", a.handleCreateProduct)
		managed.PUT("/products/:id", a.handleUpdateProduct)
		managed.DELETE("/products/:id", a.handleDeactivateProduct)
		managed.PATCH("/products/:id/increment", a.handleAdjustProductBalance(a.service.IncrementProductBalance))
		managed.PATCH("/products/:id/decrement", a.handleAdjustProductBalance(a.service.DecrementProductBalance))
	}

	return router
}

func (a *API) handleHealth(c *gin.Context) {
	if err := a.service.Ping(c.Request.Context()); err != nil {
		a.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handlePaymentTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"payment_types": a.service.PaymentTypes()})
}

func (a *API) handleCreateSale(c *gin.Context) {
	var req domain.CreateSaleRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := a.service.CreateSale(c.Request.Context(), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a *API) handleGetSale(c *gin.Context) {
	id, ok := saleIDParam(c)
	if !ok {
		return
	}
	sale, err := a.service.GetSale(c.Request.Context(), id)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleGetSaleItems(c *gin.Context) {
	id, ok := saleIDParam(c)
	if !ok {
		return
	}
	items, err := a.service.GetSaleItems(c.Request.Context(), id)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *API) handleGetSalePayments(c *gin.Context) {
	id, ok := saleIDParam(c)
	if !ok {
		return
	}
	payments, err := a.service.GetSalePayments(c.Request.Context(), id)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (a *API) handleSaleHistory(c *gin.Context) {
	id, ok := saleIDParam(c)
	if !ok {
		return
	}
	limit := parsePositiveLimit(c.Query("limit"), 50, 500)
	entries, err := a.service.SaleHistory(c.Request.Context(), id, limit)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (a *API) handleCancelSale(c *gin.Context) {
	id, ok := saleIDParam(c)
	if !ok {
		return
	}
	var req domain.CancelSaleRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !a.pinLimiter.Allow("pin:cancel:" + c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, "too many manager pin attempts")
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(c, http.StatusForbidden, "invalid manager pin")
		return
	}

	sale, err := a.service.CancelSale(c.Request.Context(), id, req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleSalesInInterval(c *gin.Context) {
	sales, err := a.service.SalesInInterval(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (a *API) handleItemsInInterval(c *gin.Context) {
	items, err := a.service.ItemsInInterval(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *API) handlePaymentsInInterval(c *gin.Context) {
	payments, err := a.service.PaymentsInInterval(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (a *API) handleSummaryInInterval(c *gin.Context) {
	summary, err := a.service.SummaryInInterval(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleExportInterval buffers the workbook so a failure halfway through
// still produces a JSON error instead of a truncated file.
func (a *API) handleExportInterval(c *gin.Context) {
	var buf bytes.Buffer
	filename, err := a.service.ExportInterval(c.Request.Context(), &buf, c.Query("start"), c.Query("end"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func (a *API) handleTodayResumes(c *gin.Context) {
	resumes, err := a.service.TodayResumes(c.Request.Context())
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumes": resumes})
}

func (a *API) handleRecordResume(c *gin.Context) {
	var req domain.RecordResumeRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	resume, err := a.service.RecordResume(c.Request.Context(), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resume)
}

func (a *API) handlePurgeResumes(c *gin.Context) {
	var req domain.PurgeResumesRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := a.service.PurgeResumes(c.Request.Context(), req.Days)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleGetSettings(c *gin.Context) {
	settings, err := a.service.GetSettings(c.Request.Context())
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *API) handleSaveSettings(c *gin.Context) {
	var req domain.Settings
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	settings, err := a.service.SaveSettings(c.Request.Context(), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *API) handleListProducts(c *gin.Context) {
	activeOnly := false
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "active must be a boolean")
			return
		}
		activeOnly = parsed
	}
	products, err := a.service.ListProducts(c.Request.Context(), activeOnly)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (a *API) handleGetProduct(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}
	product, err := a.service.GetProduct(c.Request.Context(), id)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *API) handleGetProductByCode(c *gin.Context) {
	product, err := a.service.GetProductByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.CreateProductRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	product, err := a.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}
	var req domain.UpdateProductRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	product, err := a.service.UpdateProduct(c.Request.Context(), id, req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *API) handleDeactivateProduct(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}
	if err := a.service.DeactivateProduct(c.Request.Context(), id); err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type balanceAdjuster func(ctx context.Context, id int64, amount decimal.Decimal) (domain.Product, error)

func (a *API) handleAdjustProductBalance(adjust balanceAdjuster) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := productIDParam(c)
		if !ok {
			return
		}
		var req domain.AdjustBalanceRequest
		if err := decodeJSON(c, &req); err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		product, err := adjust(c.Request.Context(), id, req.Amount)
		if err != nil {
			a.writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func saleIDParam(c *gin.Context) (int64, bool) {
	return idParam(c, "invalid sale id")
}

func productIDParam(c *gin.Context) (int64, bool) {
	return idParam(c, "invalid product id")
}

func idParam(c *gin.Context, msg string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, msg)
		return 0, false
	}
	return id, true
}

func decodeJSON(c *gin.Context, dest any) error {
	if c.Request.Body == nil {
		return errors.New("request body required")
	}
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeServiceError maps the store/service error taxonomy onto HTTP status
// codes. 5xx bodies stay generic; the cause goes to the log.
func (a *API) writeServiceError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, store.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrAlreadyCancelled):
		writeError(c, http.StatusConflict, store.ErrAlreadyCancelled.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(c, http.StatusConflict, store.ErrDuplicate.Error())
	default:
		a.log.Error("request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
		writeError(c, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	catalogService *service.CatalogService
	userService    *service.UserService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	catalogService *service.CatalogService,
	userService *service.UserService,
) *Handler {
	return &Handler{
		orderService:   orderService,
		catalogService: catalogService,
		userService:    userService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/categories", h.listCategories)
		v1.POST("/registration", h.register)
		v1.POST("/login", h.login)
	}

	auth := v1.Group("")
	auth.Use(h.authMiddleware())
	{
		auth.POST("/products", h.importPriceList)
		auth.PUT("/products/:id", h.updateProduct)
		auth.POST("/categories", h.createCategory)

		auth.GET("/orders", h.listOrders)
		auth.POST("/orders", h.createOrder)
		auth.GET("/orders/:id", h.getOrder)
		auth.PUT("/orders/:id", h.replaceOrder)
		auth.PATCH("/orders/:id", h.updateOrderStatus)
		auth.DELETE("/orders/:id", h.deleteOrder)

		auth.GET("/user-info", h.listUsers)
		auth.GET("/user-info/:id", h.getUser)
		auth.PUT("/user-info/:id", h.updateUser)
		auth.DELETE("/user-info/:id", h.deleteUser)

		auth.GET("/providers", h.listProviders)
		auth.POST("/providers", h.createProvider)

		auth.DELETE("/logout", h.logout)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps domain errors onto HTTP rejections
func respondError(c *gin.Context, err error) {
	if ve, ok := models.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Validation failed",
			"fields": ve.Fields,
		})
		return
	}

	var status int
	switch {
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotOwner),
		errors.Is(err, models.ErrForbiddenTransition),
		errors.Is(err, models.ErrImportRejected):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrPriceNotFound),
		errors.Is(err, models.ErrProviderInactive):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrTokenNotFound):
		status = http.StatusUnauthorized
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}

// listProducts handles the public catalog listing
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalogService.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// getProduct handles fetching one product with its provider prices
func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// importPriceList handles a multipart price list upload
func (h *Handler) importPriceList(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing price list file",
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.catalogService.ImportPriceList(c.Request.Context(), currentUser(c), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// updateProduct handles a provider updating its price and the description
func (h *Handler) updateProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product, err := h.catalogService.UpdateProduct(c.Request.Context(), currentUser(c), productID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// listCategories handles the public category listing
func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalogService.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// createCategory handles category creation by staff
func (h *Handler) createCategory(c *gin.Context) {
	var req service.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	category, err := h.catalogService.CreateCategory(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// listOrders handles listing the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// getOrder handles fetching one order with positions
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := h.orderService.GetOrder(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// replaceOrder handles a wholesale replacement of an order's positions
func (h *Handler) replaceOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.ReplaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.ReplaceOrder(c.Request.Context(), currentUser(c), orderID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// updateOrderStatus handles a status transition
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), currentUser(c), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// deleteOrder handles order deletion
func (h *Handler) deleteOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.orderService.DeleteOrder(c.Request.Context(), currentUser(c), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// register handles user registration
func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// login handles credential exchange for a token
func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	token, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Key})
}

// logout revokes the caller's token
func (h *Handler) logout(c *gin.Context) {
	key := c.GetString(tokenContextKey)
	if err := h.userService.Logout(c.Request.Context(), key); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listUsers handles listing user info
func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// getUser handles fetching one user's info
func (h *Handler) getUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), currentUser(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// updateUser handles updating a user's email and active flag
func (h *Handler) updateUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), currentUser(c), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// deleteUser handles user deletion
func (h *Handler) deleteUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), currentUser(c), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listProviders handles listing provider accounts
func (h *Handler) listProviders(c *gin.Context) {
	providers, err := h.userService.ListProviders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, providers)
}

// createProvider handles provider account creation by a superuser
func (h *Handler) createProvider(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	provider, err := h.userService.CreateProvider(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, provider)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid resource ID",
		})
		return 0, false
	}
	return id, true
}

package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"secureapi/internal/domain"
	"secureapi/internal/ratelimit"
	"secureapi/internal/service"
)

// Options configures a Handler.
type Options struct {
	// LoginLimiter guards POST /auth/login, keyed by client address.
	LoginLimiter ratelimit.Limiter
	// RetryAfter is advertised to rate limited clients.
	RetryAfter  time.Duration
	CORSOrigins []string
	Registry    *prometheus.Registry
	Logger      *logrus.Entry
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth        service.AuthService
	txs         service.TransactionService
	limiter     ratelimit.Limiter
	retryAfter  time.Duration
	corsOrigins []string
	registry    *prometheus.Registry
	metrics     *Metrics
	log         *logrus.Entry
}

func NewHandler(authSvc service.AuthService, txs service.TransactionService, opts Options) *Handler {
	if opts.LoginLimiter == nil {
		opts.LoginLimiter = ratelimit.NewMemoryLimiter(ratelimit.DefaultLimit, ratelimit.DefaultWindow, ratelimit.WithSweepInterval(0))
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = ratelimit.DefaultWindow
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.New())
	}
	return &Handler{
		auth:        authSvc,
		txs:         txs,
		limiter:     opts.LoginLimiter,
		retryAfter:  opts.RetryAfter,
		corsOrigins: opts.CORSOrigins,
		registry:    opts.Registry,
		metrics:     NewMetrics(opts.Registry),
		log:         opts.Logger.WithField("component", "http"),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(h.corsOrigins), h.requestLogger())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API is running!"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.loginRateLimit(), h.login)
	}

	protected := router.Group("/", h.requireAuth())
	{
		protected.GET("/users/me", h.me)
		protected.POST("/transactions", h.createTransaction)
		protected.GET("/transactions", h.listTransactions)
	}

	admin := router.Group("/admin", h.requireAuth(), h.requireRole(domain.RoleAdmin))
	{
		admin.GET("/users", h.listUsers)
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createTransactionRequest struct {
	Amount *float64 `json:"amount" binding:"required"`
}

type UserResponse struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type TransactionResponse struct {
	ID        int64   `json:"id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}

	// self-registration always yields a regular user
	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, domain.RoleUser)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User created successfully", "user": user.Username})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.logins.WithLabelValues("invalid_input").Inc()
		h.respondError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		outcome := "error"
		if errors.Is(err, service.ErrInvalidCredentials) {
			outcome = "invalid_credentials"
		}
		h.metrics.logins.WithLabelValues(outcome).Inc()
		h.respondError(c, err)
		return
	}

	h.metrics.logins.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, LoginResponse{AccessToken: token, TokenType: "Bearer"})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, userToResponse(*currentUser(c)))
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.auth.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}

	tx, err := h.txs.CreateTransaction(c.Request.Context(), currentUser(c), *req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, transactionToResponse(*tx))
}

func (h *Handler) listTransactions(c *gin.Context) {
	txs, err := h.txs.ListTransactions(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]TransactionResponse, len(txs))
	for i := range txs {
		resp[i] = transactionToResponse(txs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		Username: user.Username,
		Role:     user.Role,
	}
}

func transactionToResponse(tx domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:        tx.ID,
		UserID:    tx.UserID,
		Amount:    tx.Amount,
		Timestamp: tx.Timestamp.UTC().Format(time.RFC3339),
	}
}

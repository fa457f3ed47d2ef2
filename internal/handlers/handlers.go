package handlers

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/Krchnk/valutatrade-wallet/internal/auth"
	"github.com/Krchnk/valutatrade-wallet/internal/config"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/ledger"
	"github.com/Krchnk/valutatrade-wallet/internal/rates"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

const sessionKey = "session"

type RateUpdater interface {
	RunUpdate(ctx context.Context) (rates.UpdateReport, error)
}

type Handler struct {
	users   *auth.Service
	tokens  *auth.TokenIssuer
	ledger  *ledger.Ledger
	rates   *rates.Cache
	updater RateUpdater
	cfg     config.Config
}

func NewHandler(users *auth.Service, tokens *auth.TokenIssuer, l *ledger.Ledger, cache *rates.Cache, updater RateUpdater, cfg config.Config) *Handler {
	return &Handler{
		users:   users,
		tokens:  tokens,
		ledger:  l,
		rates:   cache,
		updater: updater,
		cfg:     cfg,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)

		authorized := api.Group("", h.AuthMiddleware())
		{
			authorized.GET("/portfolio", h.GetPortfolio)
			authorized.POST("/wallet/deposit", h.Deposit)
			authorized.POST("/buy", h.Buy)
			authorized.POST("/sell", h.Sell)
			authorized.GET("/rates", h.GetRates)
			authorized.POST("/rates/update", h.UpdateRates)
		}
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tradeRequest struct {
	Currency string          `json:"currency" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithError(err).Error("failed to bind registration request")
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	logger.WithField("username", req.Username).Info("registration attempt")

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.WithField("username", req.Username).WithError(err).Error("user registration failed")
		respondError(c, err)
		return
	}

	logger.WithField("username", user.Username).Info("user registered successfully")
	c.JSON(201, gin.H{
		"message":  "User registered successfully",
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithError(err).Error("failed to bind login request")
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	logger.WithField("username", req.Username).Info("login attempt")

	sess, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.WithField("username", req.Username).WithError(err).Error("invalid username or password")
		respondError(c, err)
		return
	}

	token, err := h.tokens.IssueToken(sess)
	if err != nil {
		logger.WithError(err).Error("failed to generate JWT")
		c.JSON(500, gin.H{"error": "Internal server error"})
		return
	}

	logger.WithField("username", req.Username).Info("login successful")
	c.JSON(200, gin.H{"token": token})
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	sess := sessionFrom(c)
	base := c.DefaultQuery("base", h.cfg.BaseCurrency)

	view, err := h.ledger.ShowPortfolio(c.Request.Context(), sess, base)
	if err != nil {
		logger.WithField("username", sess.Username()).WithError(err).Error("failed to get portfolio")
		respondError(c, err)
		return
	}

	wallets := make([]gin.H, 0, len(view.Wallets))
	for _, w := range view.Wallets {
		wallets = append(wallets, gin.H{
			"currency": w.Currency,
			"balance":  w.Balance.String(),
			"value":    w.Value.String(),
			"rate":     w.Rate,
			"priced":   w.Priced,
			"degraded": w.Degraded,
		})
	}
	c.JSON(200, gin.H{
		"user_id":  view.UserID,
		"username": view.Username,
		"base":     view.Base,
		"wallets":  wallets,
		"total":    view.Total.String(),
	})
}

func (h *Handler) Deposit(c *gin.Context) {
	h.trade(c, ledger.ActionDeposit, h.ledger.Deposit)
}

func (h *Handler) Buy(c *gin.Context) {
	h.trade(c, ledger.ActionBuy, h.ledger.Buy)
}

func (h *Handler) Sell(c *gin.Context) {
	h.trade(c, ledger.ActionSell, h.ledger.Sell)
}

type tradeFunc func(ctx context.Context, sess auth.Session, code string, amount decimal.Decimal) (ledger.TradeResult, error)

func (h *Handler) trade(c *gin.Context, action string, apply tradeFunc) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithError(err).Errorf("failed to bind %s request", action)
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	sess := sessionFrom(c)
	fields := logrus.Fields{
		"username": sess.Username(),
		"currency": req.Currency,
		"amount":   req.Amount.String(),
	}
	logger.WithFields(fields).Infof("%s attempt", action)

	res, err := apply(c.Request.Context(), sess, req.Currency, req.Amount)
	if err != nil {
		logger.WithFields(fields).WithError(err).Errorf("%s failed", action)
		respondError(c, err)
		return
	}

	body := gin.H{
		"action":         res.Action,
		"currency":       res.Currency,
		"amount":         res.Amount.String(),
		"balance_before": res.Before.String(),
		"new_balance":    res.After.String(),
	}
	if res.Value != nil {
		body["rate"] = res.Rate
		body["value_usd"] = res.Value.String()
		body["degraded"] = res.Degraded
	} else if res.PriceErr != nil {
		body["value_usd"] = nil
		body["price_error"] = res.PriceErr.Error()
	}

	logger.WithFields(fields).Infof("%s successful", action)
	c.JSON(200, body)
}

func (h *Handler) GetRates(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from != "" || to != "" {
		if to == "" {
			to = h.cfg.BaseCurrency
		}
		q, err := h.rates.GetRate(from, to, h.cfg.Rates.TTL)
		if err != nil {
			logger.WithFields(logrus.Fields{"from": from, "to": to}).WithError(err).Error("failed to get exchange rate")
			respondError(c, err)
			return
		}
		c.JSON(200, q)
		return
	}

	snap, ok, err := h.rates.Snapshot()
	if err != nil {
		logger.WithError(err).Error("failed to read rates snapshot")
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, domain.ErrRatesUnavailable)
		return
	}
	c.JSON(200, gin.H{"rates": snap.Pairs, "last_refresh": snap.LastRefresh})
}

func (h *Handler) UpdateRates(c *gin.Context) {
	report, err := h.updater.RunUpdate(c.Request.Context())

	sources := make([]gin.H, 0, len(report.Sources))
	for _, s := range report.Sources {
		item := gin.H{"source": s.Source, "pairs": s.Pairs, "ok": s.Err == nil}
		if s.Err != nil {
			item["error"] = s.Err.Error()
		}
		sources = append(sources, item)
	}

	if err != nil {
		logger.WithError(err).Error("rates update failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": domain.ErrorKind(err), "sources": sources})
		return
	}
	c.JSON(200, gin.H{
		"sources":      sources,
		"pairs":        len(report.Snapshot.Pairs),
		"last_refresh": report.Snapshot.LastRefresh,
	})
}

func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader("Authorization")
		if !strings.HasPrefix(tokenStr, "Bearer ") {
			logger.Error("missing or invalid Authorization header")
			c.AbortWithStatusJSON(401, gin.H{"error": "Unauthorized"})
			return
		}

		userID, err := h.tokens.UserIDFromToken(strings.TrimPrefix(tokenStr, "Bearer "))
		if err != nil {
			logger.WithError(err).Error("invalid JWT token")
			c.AbortWithStatusJSON(401, gin.H{"error": "Unauthorized"})
			return
		}

		sess, err := h.users.Resume(c.Request.Context(), userID)
		if err != nil {
			logger.WithField("user_id", userID).WithError(err).Error("token refers to unknown user")
			c.AbortWithStatusJSON(401, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(sessionKey, sess)
		logger.WithField("user_id", strconv.FormatInt(userID, 10)).Debug("user authenticated")
		c.Next()
	}
}

func sessionFrom(c *gin.Context) auth.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(auth.Session); ok {
			return sess
		}
	}
	return auth.AnonymousSession()
}

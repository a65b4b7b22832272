package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/services"
)

// dashboardActor marks decisions taken through the admin API rather
// than by a Telegram administrator.
const dashboardActor int64 = 0

type AdminHandler struct {
	auth    services.AuthService
	subs    *services.SubscriptionService
	users   repositories.UserRepository
	jobs    repositories.JobRepository
	depthFn func(ctx context.Context) (int64, error)
}

func NewAdminHandler(
	auth services.AuthService,
	subs *services.SubscriptionService,
	users repositories.UserRepository,
	jobs repositories.JobRepository,
	depthFn func(ctx context.Context) (int64, error),
) *AdminHandler {
	return &AdminHandler{
		auth:    auth,
		subs:    subs,
		users:   users,
		jobs:    jobs,
		depthFn: depthFn,
	}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	resp, err := h.auth.Login(&req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) ListPendingPayments(c *gin.Context) {
	payments, err := h.subs.ListPendingPayments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *AdminHandler) ConfirmPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	sub, err := h.subs.ConfirmPayment(c.Request.Context(), paymentID, dashboardActor)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, models.ErrPaymentFinalized):
			c.JSON(http.StatusConflict, gin.H{"error": "payment already finalized"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (h *AdminHandler) RejectPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "rejected by administrator"
	}

	if err := h.subs.RejectPayment(c.Request.Context(), paymentID, dashboardActor, body.Reason); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, models.ErrPaymentFinalized):
			c.JSON(http.StatusConflict, gin.H{"error": "payment already finalized"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reject payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (h *AdminHandler) BlacklistUser(c *gin.Context) {
	h.setUserStatus(c, models.UserStatusBlacklisted)
}

func (h *AdminHandler) UnblacklistUser(c *gin.Context) {
	h.setUserStatus(c, models.UserStatusActive)
}

func (h *AdminHandler) setUserStatus(c *gin.Context, status models.UserStatus) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.users.UpdateStatus(c.Request.Context(), userID, status); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": status})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	userCount, err := h.users.CountUsers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count users"})
		return
	}

	jobCounts, err := h.jobs.CountByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count jobs"})
		return
	}

	pending, err := h.subs.ListPendingPayments(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}

	stats := gin.H{
		"users":            userCount,
		"jobs":             jobCounts,
		"pending_payments": len(pending),
	}
	if h.depthFn != nil {
		if depth, err := h.depthFn(ctx); err == nil {
			stats["queue_depth"] = depth
		}
	}

	c.JSON(http.StatusOK, stats)
}

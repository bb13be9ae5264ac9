package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mintpass/mintpass-go/internal/apperrors"
	"github.com/mintpass/mintpass-go/internal/auth"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	config *config.Config
}

func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{db: db, config: cfg}
}

func (s *Service) SetupRoutes(r *gin.Engine) {
	r.POST("/auth/sync", s.Sync)

	users := r.Group("/users")
	users.Use(auth.Middleware(s.config))
	{
		users.GET("/me", s.Me)
	}
}

// NormalizeAddress canonicalizes a wallet address for lookup and storage.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ResolveOrCreate finds the user for a wallet address, creating one on first
// sight. If the supplied email is already bound to a different address, that
// user's address is repointed instead of creating a duplicate: the wallet
// login path sends whatever email the identity provider holds, and the address
// wins. The returned user is guaranteed to exist.
func (s *Service) ResolveOrCreate(ctx context.Context, address, email string) (*models.User, error) {
	addr := NormalizeAddress(address)
	if addr == "" {
		return nil, apperrors.Validation("wallet address is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("address = ?", addr).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if email != "" {
		// The email may already belong to a user seen under another address.
		var byEmail models.User
		err := s.db.WithContext(ctx).Where("email = ?", email).First(&byEmail).Error
		if err == nil {
			if err := s.db.WithContext(ctx).Model(&byEmail).Update("address", addr).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return nil, apperrors.Duplicate("wallet address already in use")
				}
				return nil, err
			}
			byEmail.Address = addr
			return &byEmail, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if email == "" {
		// Placeholder for wallets that interact before ever logging in
		// through the identity provider.
		email = addr + "@wallet.local"
	}

	user = models.User{
		Address:            addr,
		Email:              email,
		Role:               models.RoleUser,
		VerificationStatus: models.VerificationUnverified,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Duplicate("user already exists")
		}
		return nil, err
	}

	return &user, nil
}

// GetByAddress returns the user for a normalized wallet address.
func (s *Service) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("address = ?", NormalizeAddress(address)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) Sync(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
		Email   string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	user, err := s.ResolveOrCreate(c.Request.Context(), req.Address, req.Email)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	token, err := auth.GenerateToken(s.config, user.Address, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":      user.ID,
			"address": user.Address,
			"email":   user.Email,
			"role":    user.Role,
			"isVip":   user.IsVip,
		},
	})
}

func (s *Service) Me(c *gin.Context) {
	user, err := s.GetByAddress(c.Request.Context(), auth.CallerAddress(c))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// RequireAdmin loads the authenticated caller and rejects non-admins. Shared
// by the admin route groups.
func (s *Service) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.GetByAddress(c.Request.Context(), auth.CallerAddress(c))
		if err != nil || user.Role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

package verification

import (
	"context"
	"errors"
	"net/http"

	"github.com/mintpass/mintpass-go/internal/apperrors"
	"github.com/mintpass/mintpass-go/internal/auth"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"
	"github.com/mintpass/mintpass-go/internal/monitoring"
	"github.com/mintpass/mintpass-go/internal/services/identity"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Decisions accepted by the resolution endpoints.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

type Service struct {
	db       *gorm.DB
	config   *config.Config
	identity *identity.Service
}

func NewService(db *gorm.DB, cfg *config.Config, identitySvc *identity.Service) *Service {
	return &Service{db: db, config: cfg, identity: identitySvc}
}

func (s *Service) SetupRoutes(r *gin.Engine) {
	verification := r.Group("/verification")
	verification.Use(auth.Middleware(s.config))
	{
		verification.POST("/request", s.Request)
	}

	admin := r.Group("/admin/verification")
	admin.Use(auth.Middleware(s.config), s.identity.RequireAdmin())
	{
		admin.GET("/pending", s.ListPending)
		admin.POST("/:id/resolve", s.ResolveHandler)
		admin.POST("/resolve-batch", s.ResolveBatchHandler)
	}
}

// RequestVerification files a PENDING request for elevated standing. While a
// request of the same type is already PENDING for the user, re-submission is a
// no-op that still reports success.
func (s *Service) RequestVerification(ctx context.Context, address, requestType string) (*models.VerificationRequest, error) {
	if requestType != models.RequestTypeOrganizer && requestType != models.RequestTypeVIP {
		return nil, apperrors.Validation("verification type must be ORGANIZER or VIP")
	}

	user, err := s.identity.ResolveOrCreate(ctx, address, "")
	if err != nil {
		return nil, err
	}

	var existing models.VerificationRequest
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND status = ?", user.ID, requestType, models.RequestPending).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	request := models.VerificationRequest{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Type:   requestType,
		Status: models.RequestPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&request).Error; err != nil {
			return err
		}
		if requestType == models.RequestTypeOrganizer {
			// Legacy mirror for readers still on the single-status model.
			if err := tx.Model(user).Update("verification_status", models.VerificationPending).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &request, nil
}

// Resolve applies an administrator decision to one PENDING request. Approval
// and the resulting user mutation commit together.
func (s *Service) Resolve(ctx context.Context, requestID, decision string) (*models.VerificationRequest, error) {
	newStatus, err := statusForDecision(decision)
	if err != nil {
		return nil, err
	}

	var request models.VerificationRequest
	if err := s.db.WithContext(ctx).Preload("User").First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("verification request")
		}
		return nil, err
	}

	if request.Status != models.RequestPending {
		conflict := apperrors.Conflict(apperrors.CodeAlreadyResolved, "verification request has already been resolved")
		conflict.Detail = map[string]any{"status": request.Status}
		return nil, conflict
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guard on PENDING so a concurrent resolution loses cleanly.
		result := tx.Model(&models.VerificationRequest{}).
			Where("id = ? AND status = ?", requestID, models.RequestPending).
			Update("status", newStatus)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict(apperrors.CodeAlreadyResolved, "verification request has already been resolved")
		}

		if newStatus == models.RequestApproved {
			return applyApproval(tx, &request, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackVerificationResolution(request.Type, decision)

	if err := s.db.WithContext(ctx).Preload("User").First(&request, "id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// ResolveBatch resolves every id still PENDING at execution time, silently
// skipping the rest. Status updates and user mutations are one all-or-nothing
// unit. Returns the number of requests resolved.
func (s *Service) ResolveBatch(ctx context.Context, requestIDs []string, decision string) (int, error) {
	newStatus, err := statusForDecision(decision)
	if err != nil {
		return 0, err
	}
	if len(requestIDs) == 0 {
		return 0, apperrors.Validation("at least one request id is required")
	}

	var resolved int
	var resolvedTypes []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []models.VerificationRequest
		if err := tx.Preload("User").
			Where("id IN ? AND status = ?", requestIDs, models.RequestPending).
			Find(&pending).Error; err != nil {
			return err
		}

		for i := range pending {
			request := &pending[i]
			result := tx.Model(&models.VerificationRequest{}).
				Where("id = ? AND status = ?", request.ID, models.RequestPending).
				Update("status", newStatus)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}

			if newStatus == models.RequestApproved {
				// The batch path grants the privilege but leaves the legacy
				// mirror alone; only single resolution maintains it.
				if err := applyApproval(tx, request, false); err != nil {
					return err
				}
			}

			resolved++
			resolvedTypes = append(resolvedTypes, request.Type)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, t := range resolvedTypes {
		monitoring.TrackVerificationResolution(t, decision)
	}
	return resolved, nil
}

// applyApproval grants the privilege the request asked for. Runs inside the
// resolution transaction.
func applyApproval(tx *gorm.DB, request *models.VerificationRequest, updateLegacy bool) error {
	switch request.Type {
	case models.RequestTypeOrganizer:
		updates := map[string]any{"role": models.RoleOrganizer}
		if updateLegacy {
			updates["verification_status"] = models.VerificationVerified
		}
		return tx.Model(&models.User{}).Where("id = ?", request.UserID).Updates(updates).Error
	case models.RequestTypeVIP:
		return tx.Model(&models.User{}).Where("id = ?", request.UserID).Update("is_vip", true).Error
	default:
		return apperrors.Validation("unknown verification type " + request.Type)
	}
}

func statusForDecision(decision string) (string, error) {
	switch decision {
	case DecisionApprove:
		return models.RequestApproved, nil
	case DecisionReject:
		return models.RequestRejected, nil
	default:
		return "", apperrors.Validation("decision must be APPROVE or REJECT")
	}
}

func (s *Service) Request(c *gin.Context) {
	var req struct {
		Type string `json:"type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	request, err := s.RequestVerification(c.Request.Context(), auth.CallerAddress(c), req.Type)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requestId": request.ID,
		"status":    request.Status,
		"message":   "Verification request submitted",
	})
}

func (s *Service) ListPending(c *gin.Context) {
	var pending []models.VerificationRequest
	if err := s.db.Preload("User").
		Where("status = ?", models.RequestPending).
		Order("created_at asc").
		Find(&pending).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch pending requests",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": pending,
		"count":    len(pending),
	})
}

func (s *Service) ResolveHandler(c *gin.Context) {
	var req struct {
		Decision string `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	request, err := s.Resolve(c.Request.Context(), c.Param("id"), req.Decision)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

func (s *Service) ResolveBatchHandler(c *gin.Context) {
	var req struct {
		RequestIDs []string `json:"requestIds" binding:"required"`
		Decision   string   `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	count, err := s.ResolveBatch(c.Request.Context(), req.RequestIDs, req.Decision)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resolved": count,
	})
}

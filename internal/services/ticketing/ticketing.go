package ticketing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mintpass/mintpass-go/internal/apperrors"
	"github.com/mintpass/mintpass-go/internal/auth"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"
	"github.com/mintpass/mintpass-go/internal/monitoring"
	"github.com/mintpass/mintpass-go/internal/services/identity"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
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
	tickets := r.Group("/tickets")
	tickets.Use(auth.Middleware(s.config))
	{
		tickets.POST("/mint", s.Mint)
		tickets.GET("/wallet/:address", s.WalletTickets)
	}

	// Gate scanning is open to any authenticated caller: gate staff scan with
	// devices logged in as their own accounts, not the organizer's.
	gate := r.Group("/gate")
	gate.Use(auth.Middleware(s.config))
	{
		gate.POST("/scan", s.Scan)
	}
}

type MintRequest struct {
	EventID      uint   `json:"eventId" binding:"required"`
	TicketTypeID uint   `json:"ticketTypeId" binding:"required"`
	TokenID      uint64 `json:"tokenId" binding:"required"`
	OwnerAddress string `json:"ownerAddress" binding:"required"`
}

// RecordMint records an on-chain purchase: inserts the ticket and bumps the
// tier's sold counter under a capacity guard, in one transaction. The owner
// wallet is auto-provisioned if it has never been seen.
func (s *Service) RecordMint(ctx context.Context, req MintRequest) (*models.Ticket, error) {
	owner, err := s.identity.ResolveOrCreate(ctx, req.OwnerAddress, "")
	if err != nil {
		return nil, err
	}

	var ticket models.Ticket
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticketType models.TicketType
		if err := tx.First(&ticketType, "id = ? AND event_id = ?", req.TicketTypeID, req.EventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("ticket type")
			}
			return err
		}

		var event models.Event
		if err := tx.First(&event, req.EventID).Error; err != nil {
			return err
		}

		if event.PurchaseCap > 0 {
			var owned int64
			if err := tx.Model(&models.Ticket{}).
				Where("event_id = ? AND owner_id = ?", req.EventID, owner.ID).
				Count(&owned).Error; err != nil {
				return err
			}
			if owned >= int64(event.PurchaseCap) {
				return apperrors.Conflict(apperrors.CodePurchaseCap, "wallet has reached the purchase cap for this event")
			}
		}

		var existing models.Ticket
		err := tx.Where("event_id = ? AND token_id = ?", req.EventID, req.TokenID).First(&existing).Error
		if err == nil {
			return apperrors.Duplicate("token id already recorded for this event")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Guarded increment so the sold counter can never pass capacity.
		result := tx.Model(&models.TicketType{}).
			Where("id = ? AND tickets_sold < capacity", ticketType.ID).
			UpdateColumn("tickets_sold", gorm.Expr("tickets_sold + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict(apperrors.CodeSoldOut, "ticket type is sold out")
		}

		ticket = models.Ticket{
			EventID:      req.EventID,
			TicketTypeID: ticketType.ID,
			OwnerID:      owner.ID,
			TokenID:      req.TokenID,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.Duplicate("token id already recorded for this event")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackMintRecorded()
	return &ticket, nil
}

// Redeem marks the ticket for (tokenID, eventID) as used. Token ids are
// scoped per event. The redeemed flag is flipped with a conditional update so
// concurrent scans of the same ticket yield exactly one success; every other
// caller gets ALREADY_SCANNED carrying the first redemption's timestamp.
func (s *Service) Redeem(ctx context.Context, tokenID uint64, eventID uint) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Preload("TicketType").Preload("Owner").
		Where("token_id = ? AND event_id = ?", tokenID, eventID).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			monitoring.TrackRedemption("not_found")
			return nil, apperrors.NotFound("ticket")
		}
		return nil, err
	}

	if ticket.Redeemed {
		monitoring.TrackRedemption("already_scanned")
		return nil, alreadyScanned(&ticket)
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND redeemed = ?", ticket.ID, false).
		Updates(map[string]any{"redeemed": true, "redeemed_at": now})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Lost the race: someone else scanned between our read and write.
		if err := s.db.WithContext(ctx).First(&ticket, ticket.ID).Error; err != nil {
			return nil, err
		}
		monitoring.TrackRedemption("already_scanned")
		return nil, alreadyScanned(&ticket)
	}

	ticket.Redeemed = true
	ticket.RedeemedAt = &now
	monitoring.TrackRedemption("redeemed")
	return &ticket, nil
}

func alreadyScanned(ticket *models.Ticket) *apperrors.APIError {
	if ticket.RedeemedAt != nil {
		return apperrors.AlreadyScanned(*ticket.RedeemedAt)
	}
	return apperrors.Conflict(apperrors.CodeAlreadyScanned, "ticket has already been scanned")
}

func (s *Service) Mint(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	ticket, err := s.RecordMint(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, ticket)
}

func (s *Service) Scan(c *gin.Context) {
	var req struct {
		TokenID uint64 `json:"tokenId" binding:"required"`
		EventID uint   `json:"eventId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	ticket, err := s.Redeem(c.Request.Context(), req.TokenID, req.EventID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket":  ticket,
		"message": "Ticket redeemed successfully",
	})
}

func (s *Service) WalletTickets(c *gin.Context) {
	user, err := s.identity.GetByAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	var tickets []models.Ticket
	if err := s.db.Preload("TicketType").Preload("Event").
		Find(&tickets, "owner_id = ?", user.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch tickets",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

package marketplace

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mintpass/mintpass-go/internal/apperrors"
	"github.com/mintpass/mintpass-go/internal/auth"
	"github.com/mintpass/mintpass-go/internal/chain"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"
	"github.com/mintpass/mintpass-go/internal/monitoring"
	"github.com/mintpass/mintpass-go/internal/services/identity"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	config   *config.Config
	identity *identity.Service
	ledger   chain.Ledger
}

func NewService(db *gorm.DB, cfg *config.Config, identitySvc *identity.Service, ledger chain.Ledger) *Service {
	return &Service{db: db, config: cfg, identity: identitySvc, ledger: ledger}
}

func (s *Service) SetupRoutes(r *gin.Engine) {
	r.GET("/listings", s.ListActive)

	listings := r.Group("/listings")
	listings.Use(auth.Middleware(s.config))
	{
		listings.POST("", s.Create)
		listings.DELETE("/:id", s.Cancel)
		listings.POST("/:id/fill", s.Fill)
	}
}

// CreateListing puts a ticket up for resale. The ticket must exist, belong to
// the seller, be unredeemed, be transferable, and not already be listed.
func (s *Service) CreateListing(ctx context.Context, sellerAddress string, ticketID uint, price decimal.Decimal, deadline time.Time) (*models.Listing, error) {
	if price.IsNegative() {
		return nil, apperrors.Validation("listing price cannot be negative")
	}
	if !deadline.After(time.Now()) {
		return nil, apperrors.Validation("listing deadline must be in the future")
	}

	seller, err := s.identity.GetByAddress(ctx, sellerAddress)
	if err != nil {
		return nil, err
	}

	var ticket models.Ticket
	if err := s.db.WithContext(ctx).Preload("Event").First(&ticket, ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("ticket")
		}
		return nil, err
	}

	if ticket.OwnerID != seller.ID {
		return nil, apperrors.Forbidden("only the ticket owner can list it for resale")
	}
	if ticket.Redeemed {
		return nil, apperrors.Conflict("TICKET_REDEEMED", "a redeemed ticket cannot be listed")
	}
	if !ticket.Event.Transferable {
		return nil, apperrors.Conflict("NOT_TRANSFERABLE", "tickets for this event are not transferable")
	}

	var active int64
	if err := s.db.WithContext(ctx).Model(&models.Listing{}).
		Where("ticket_id = ? AND status = ?", ticketID, models.ListingActive).
		Count(&active).Error; err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, apperrors.Conflict("ALREADY_LISTED", "ticket already has an active listing")
	}

	listing := models.Listing{
		ID:       uuid.NewString(),
		TicketID: ticketID,
		SellerID: seller.ID,
		Price:    price,
		Deadline: deadline,
		Status:   models.ListingActive,
	}
	if err := s.db.WithContext(ctx).Create(&listing).Error; err != nil {
		return nil, err
	}

	monitoring.TrackListingTransition(models.ListingActive)
	return &listing, nil
}

// CancelListing cancels an ACTIVE listing. Sequencing: the on-chain
// cancellation is submitted and confirmed first, then the store row is
// flipped. If the store write fails after the chain succeeded, the caller
// gets a dependency error with the tx hash and the listing stays ACTIVE;
// retrying is safe because the ledger treats an already-cancelled listing as
// success.
func (s *Service) CancelListing(ctx context.Context, callerAddress, listingID string) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.WithContext(ctx).
		Preload("Ticket").Preload("Ticket.Event").Preload("Seller").
		First(&listing, "id = ?", listingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("listing")
		}
		return nil, err
	}

	if listing.Seller.Address != identity.NormalizeAddress(callerAddress) {
		return nil, apperrors.Forbidden("only the seller can cancel this listing")
	}

	if listing.Status != models.ListingActive {
		conflict := apperrors.Conflict(apperrors.CodeNotActive, "listing is not active")
		conflict.Detail = map[string]any{"status": listing.Status}
		return nil, conflict
	}

	txHash, err := s.ledger.CancelListing(ctx, listing.Ticket.Event.ContractAddress, listing.Ticket.TokenID)
	if err != nil {
		return nil, apperrors.Dependency("on-chain cancellation failed", map[string]any{
			"reason": err.Error(),
		})
	}

	result := s.db.WithContext(ctx).Model(&models.Listing{}).
		Where("id = ? AND status = ?", listingID, models.ListingActive).
		Update("status", models.ListingCancelled)
	if result.Error != nil {
		// Chain cancelled but store still ACTIVE. Reportable and retryable,
		// never swallowed.
		return nil, apperrors.Dependency("listing cancelled on-chain but store update failed; retry to reconcile", map[string]any{
			"txHash": txHash,
		})
	}
	if result.RowsAffected == 0 {
		conflict := apperrors.Conflict(apperrors.CodeNotActive, "listing is not active")
		return nil, conflict
	}

	listing.Status = models.ListingCancelled
	monitoring.TrackListingTransition(models.ListingCancelled)
	return &listing, nil
}

// MarkFilled settles a resale purchase: flips the listing to FILLED and
// transfers ticket ownership to the buyer in one transaction.
func (s *Service) MarkFilled(ctx context.Context, listingID, buyerAddress string) (*models.Listing, error) {
	buyer, err := s.identity.ResolveOrCreate(ctx, buyerAddress, "")
	if err != nil {
		return nil, err
	}

	var listing models.Listing
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Ticket").First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("listing")
			}
			return err
		}

		if listing.Status != models.ListingActive {
			conflict := apperrors.Conflict(apperrors.CodeNotActive, "listing is not active")
			conflict.Detail = map[string]any{"status": listing.Status}
			return conflict
		}
		if time.Now().After(listing.Deadline) {
			return apperrors.Conflict("LISTING_EXPIRED", "listing deadline has passed")
		}
		if listing.SellerID == buyer.ID {
			return apperrors.Validation("seller cannot fill their own listing")
		}

		result := tx.Model(&models.Listing{}).
			Where("id = ? AND status = ?", listingID, models.ListingActive).
			Update("status", models.ListingFilled)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict(apperrors.CodeNotActive, "listing is not active")
		}

		return tx.Model(&models.Ticket{}).
			Where("id = ?", listing.TicketID).
			Update("owner_id", buyer.ID).Error
	})
	if err != nil {
		return nil, err
	}

	listing.Status = models.ListingFilled
	monitoring.TrackListingTransition(models.ListingFilled)
	return &listing, nil
}

func (s *Service) ListActive(c *gin.Context) {
	var listings []models.Listing
	if err := s.db.Preload("Ticket").Preload("Ticket.Event").Preload("Ticket.TicketType").Preload("Seller").
		Where("status = ? AND deadline > ?", models.ListingActive, time.Now()).
		Order("created_at desc").
		Find(&listings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch listings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

func (s *Service) Create(c *gin.Context) {
	var req struct {
		TicketID uint            `json:"ticketId" binding:"required"`
		Price    decimal.Decimal `json:"price"`
		Deadline time.Time       `json:"deadline" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	listing, err := s.CreateListing(c.Request.Context(), auth.CallerAddress(c), req.TicketID, req.Price, req.Deadline)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, listing)
}

func (s *Service) Cancel(c *gin.Context) {
	listing, err := s.CancelListing(c.Request.Context(), auth.CallerAddress(c), c.Param("id"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (s *Service) Fill(c *gin.Context) {
	listing, err := s.MarkFilled(c.Request.Context(), c.Param("id"), auth.CallerAddress(c))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

package event

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mintpass/mintpass-go/internal/apperrors"
	"github.com/mintpass/mintpass-go/internal/auth"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"
	"github.com/mintpass/mintpass-go/internal/pinning"
	"github.com/mintpass/mintpass-go/internal/redis"
	"github.com/mintpass/mintpass-go/internal/services/identity"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	config   *config.Config
	identity *identity.Service
	cache    *redis.Client
	pinner   *pinning.Client
}

func NewService(db *gorm.DB, cfg *config.Config, identitySvc *identity.Service, cache *redis.Client, pinner *pinning.Client) *Service {
	return &Service{db: db, config: cfg, identity: identitySvc, cache: cache, pinner: pinner}
}

func (s *Service) SetupRoutes(r *gin.Engine) {
	r.GET("/events", s.ListEvents)
	r.GET("/events/:id", s.GetEvent)

	events := r.Group("/events")
	events.Use(auth.Middleware(s.config))
	{
		events.POST("", s.CreateEventHandler)
	}

	admin := r.Group("/admin/events")
	admin.Use(auth.Middleware(s.config), s.identity.RequireAdmin())
	{
		admin.DELETE("/:id", s.DeleteEvent)
	}
}

type TierSpec struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

type CreateEventRequest struct {
	OrganizerAddress string    `json:"organizerAddress"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Date             time.Time `json:"date"`
	Venue            string    `json:"venue"`
	CoverImageCID    string    `json:"coverImageCid"`
	ContractAddress  string    `json:"contractAddress"`
	Trending         bool      `json:"trending"`
	PurchaseCap      int       `json:"purchaseCap"`
	Transferable     *bool     `json:"transferable"`
	Tiers            []TierSpec `json:"tiers"`
}

// CreateEvent validates the spec, resolves the organizer, pins tier metadata,
// and persists the event with all its tiers as one transaction so a reader
// never observes an event without tiers.
func (s *Service) CreateEvent(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Pin tier metadata before any write so a pinning failure leaves no rows.
	metadataCIDs := make([]string, len(req.Tiers))
	for i, tier := range req.Tiers {
		if tier.Metadata == nil {
			continue
		}
		if s.pinner == nil {
			return nil, apperrors.Validation("tier metadata supplied but no pinning service configured")
		}
		cid, err := s.pinner.PinJSON(ctx, tier.Metadata)
		if err != nil {
			return nil, apperrors.Dependency("failed to pin tier metadata", map[string]any{
				"tier":   tier.Name,
				"reason": err.Error(),
			})
		}
		metadataCIDs[i] = cid
	}

	organizer, err := s.identity.ResolveOrCreate(ctx, req.OrganizerAddress, "")
	if err != nil {
		return nil, err
	}

	transferable := true
	if req.Transferable != nil {
		transferable = *req.Transferable
	}

	event := models.Event{
		OrganizerID:     organizer.ID,
		Name:            req.Name,
		Description:     req.Description,
		Date:            req.Date,
		Venue:           req.Venue,
		CoverImageCID:   req.CoverImageCID,
		ContractAddress: req.ContractAddress,
		Trending:        req.Trending,
		PurchaseCap:     req.PurchaseCap,
		Transferable:    transferable,
	}
	for i, tier := range req.Tiers {
		event.TicketTypes = append(event.TicketTypes, models.TicketType{
			Name:        tier.Name,
			Price:       tier.Price,
			Capacity:    tier.Capacity,
			MetadataCID: metadataCIDs[i],
		})
	}

	// Creating the event with its tiers attached inserts all rows in one
	// transaction.
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}

	return &event, nil
}

func validate(req CreateEventRequest) error {
	if req.Name == "" {
		return apperrors.Validation("event name is required")
	}
	if req.Date.IsZero() {
		return apperrors.Validation("event date is required")
	}
	if req.OrganizerAddress == "" {
		return apperrors.Validation("organizer address is required")
	}
	if req.ContractAddress == "" {
		return apperrors.Validation("contract address is required")
	}
	if len(req.Tiers) == 0 {
		return apperrors.Validation("at least one ticket tier is required")
	}
	if req.PurchaseCap < 0 {
		return apperrors.Validation("purchase cap cannot be negative")
	}
	for _, tier := range req.Tiers {
		if tier.Name == "" {
			return apperrors.Validation("tier name is required")
		}
		// Zero is allowed: it denotes a free tier.
		if tier.Price.IsNegative() {
			return apperrors.Validation("tier price cannot be negative")
		}
		if tier.Capacity < 0 {
			return apperrors.Validation("tier capacity cannot be negative")
		}
	}
	return nil
}

func (s *Service) CreateEventHandler(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid event data",
			"details": err.Error(),
		})
		return
	}

	event, err := s.CreateEvent(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

func (s *Service) GetEvent(c *gin.Context) {
	eventIDStr := c.Param("id")
	eventID, err := strconv.ParseUint(eventIDStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event ID",
		})
		return
	}

	ctx := c.Request.Context()

	if s.cache != nil {
		if payload, err := s.cache.GetCachedEvent(ctx, uint(eventID)); err == nil {
			c.Data(http.StatusOK, "application/json", payload)
			return
		} else if !redis.IsCacheMiss(err) {
			log.Printf("Event cache read failed: %v", err)
		}
	}

	var event models.Event
	result := s.db.Preload("Organizer").Preload("TicketTypes").First(&event, uint(eventID))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Event not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch event",
		})
		return
	}

	if s.cache != nil {
		if payload, err := json.Marshal(event); err == nil {
			if err := s.cache.CacheEvent(ctx, event.ID, payload, s.config.EventCacheTTL); err != nil {
				log.Printf("Event cache write failed: %v", err)
			}
		}
	}

	c.JSON(http.StatusOK, event)
}

func (s *Service) ListEvents(c *gin.Context) {
	query := s.db.Preload("TicketTypes").Order("date asc")
	if c.Query("trending") == "true" {
		query = query.Where("trending = ?", true)
	}

	var events []models.Event
	if err := query.Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch events",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// DeleteEvent removes an event and its tiers. Admin only; tickets are left in
// place for audit (full resets go through operational tooling, not the API).
func (s *Service) DeleteEvent(c *gin.Context) {
	eventIDStr := c.Param("id")
	eventID, err := strconv.ParseUint(eventIDStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event ID",
		})
		return
	}

	var event models.Event
	if err := s.db.First(&event, uint(eventID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Event not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch event",
		})
		return
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", event.ID).Delete(&models.TicketType{}).Error; err != nil {
			return err
		}
		return tx.Delete(&event).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete event",
		})
		return
	}

	if s.cache != nil {
		if err := s.cache.InvalidateEvent(c.Request.Context(), event.ID); err != nil {
			log.Printf("Event cache invalidation failed: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event deleted successfully",
	})
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User roles
const (
	RoleUser      = "USER"
	RoleOrganizer = "ORGANIZER"
	RoleAdmin     = "ADMIN"
)

// Legacy organizer verification mirror on User. Kept for backward-compatible
// readers; Role and IsVip are the source of truth.
const (
	VerificationUnverified = "UNVERIFIED"
	VerificationPending    = "PENDING"
	VerificationVerified   = "VERIFIED"
)

// Verification request types
const (
	RequestTypeOrganizer = "ORGANIZER"
	RequestTypeVIP       = "VIP"
)

// Verification request statuses
const (
	RequestPending  = "PENDING"
	RequestApproved = "APPROVED"
	RequestRejected = "REJECTED"
)

// Listing statuses
const (
	ListingActive    = "ACTIVE"
	ListingCancelled = "CANCELLED"
	ListingFilled    = "FILLED"
)

type User struct {
	gorm.Model
	Address            string `gorm:"not null;unique"` // lower-case wallet address
	Email              string `gorm:"not null;unique"`
	Role               string `gorm:"not null;default:'USER'"`
	IsVip              bool   `gorm:"not null;default:false"`
	VerificationStatus string `gorm:"not null;default:'UNVERIFIED'"`
}

type Event struct {
	gorm.Model
	OrganizerID     uint   `gorm:"not null"`
	Name            string `gorm:"not null"`
	Description     string
	Date            time.Time `gorm:"not null"`
	Venue           string
	CoverImageCID   string
	ContractAddress string `gorm:"not null"`
	Trending        bool   `gorm:"not null;default:false"`
	PurchaseCap     int    `gorm:"not null;default:0"` // 0 means uncapped
	Transferable    bool   `gorm:"not null;default:true"`

	// Relationships
	Organizer   User         `gorm:"foreignKey:OrganizerID"`
	TicketTypes []TicketType `gorm:"foreignKey:EventID"`
}

type TicketType struct {
	gorm.Model
	EventID     uint            `gorm:"not null"`
	Name        string          `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Capacity    int             `gorm:"not null"`
	TicketsSold int             `gorm:"not null;default:0"`
	MetadataCID string
}

type Ticket struct {
	gorm.Model
	EventID      uint   `gorm:"not null;uniqueIndex:idx_event_token"`
	TicketTypeID uint   `gorm:"not null"`
	OwnerID      uint   `gorm:"not null"`
	TokenID      uint64 `gorm:"not null;uniqueIndex:idx_event_token"` // unique per event, not globally
	Redeemed     bool   `gorm:"not null;default:false"`
	RedeemedAt   *time.Time

	// Relationships
	Event      Event      `gorm:"foreignKey:EventID"`
	TicketType TicketType `gorm:"foreignKey:TicketTypeID"`
	Owner      User       `gorm:"foreignKey:OwnerID"`
}

type Listing struct {
	ID        string          `gorm:"primaryKey"`
	TicketID  uint            `gorm:"not null;index"`
	SellerID  uint            `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Deadline  time.Time       `gorm:"not null"`
	Status    string          `gorm:"not null;default:'ACTIVE'"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// Relationships
	Ticket Ticket `gorm:"foreignKey:TicketID"`
	Seller User   `gorm:"foreignKey:SellerID"`
}

type VerificationRequest struct {
	ID        string `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Type      string `gorm:"not null"`
	Status    string `gorm:"not null;default:'PENDING'"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// Relationships
	User User `gorm:"foreignKey:UserID"`
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Event{},
		&TicketType{},
		&Ticket{},
		&Listing{},
		&VerificationRequest{},
	)
}

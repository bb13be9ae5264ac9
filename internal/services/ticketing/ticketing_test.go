package ticketing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mintpass/mintpass-go/internal/apperrors"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"
	"github.com/mintpass/mintpass-go/internal/services/identity"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))

	cfg := &config.Config{JWTSecret: "test-secret"}
	identityService := identity.NewService(db, cfg)
	return NewService(db, cfg, identityService), db
}

func seedEvent(t *testing.T, db *gorm.DB, capacity, purchaseCap int) (*models.Event, *models.TicketType) {
	t.Helper()

	organizer := models.User{
		Address: "0xorganizer",
		Email:   "0xorganizer@wallet.local",
		Role:    models.RoleOrganizer,
	}
	require.NoError(t, db.Create(&organizer).Error)

	event := models.Event{
		OrganizerID:     organizer.ID,
		Name:            "Test Concert",
		Date:            time.Now().Add(24 * time.Hour),
		ContractAddress: "0xcontract",
		PurchaseCap:     purchaseCap,
		Transferable:    true,
		TicketTypes: []models.TicketType{
			{Name: "General", Price: decimal.NewFromInt(50), Capacity: capacity},
		},
	}
	require.NoError(t, db.Create(&event).Error)
	return &event, &event.TicketTypes[0]
}

func TestRecordMint_CreatesTicketAndBumpsSold(t *testing.T) {
	service, db := newTestService(t)
	event, tier := seedEvent(t, db, 10, 0)

	ticket, err := service.RecordMint(context.Background(), MintRequest{
		EventID:      event.ID,
		TicketTypeID: tier.ID,
		TokenID:      42,
		OwnerAddress: "0xBuyer",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 42, ticket.TokenID)
	assert.False(t, ticket.Redeemed)

	var stored models.TicketType
	require.NoError(t, db.First(&stored, tier.ID).Error)
	assert.Equal(t, 1, stored.TicketsSold)

	// Owner wallet was auto-provisioned.
	var owner models.User
	require.NoError(t, db.First(&owner, ticket.OwnerID).Error)
	assert.Equal(t, "0xbuyer", owner.Address)
}

func TestRecordMint_SoldOut(t *testing.T) {
	service, db := newTestService(t)
	event, tier := seedEvent(t, db, 1, 0)
	ctx := context.Background()

	_, err := service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 1, OwnerAddress: "0xa",
	})
	require.NoError(t, err)

	_, err = service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 2, OwnerAddress: "0xb",
	})
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeSoldOut, apiErr.Code)

	// The failed mint must not leave a ticket row behind.
	var count int64
	db.Model(&models.Ticket{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRecordMint_PurchaseCap(t *testing.T) {
	service, db := newTestService(t)
	event, tier := seedEvent(t, db, 10, 1)
	ctx := context.Background()

	_, err := service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 1, OwnerAddress: "0xwhale",
	})
	require.NoError(t, err)

	_, err = service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 2, OwnerAddress: "0xwhale",
	})
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodePurchaseCap, apiErr.Code)
}

func TestRecordMint_DuplicateTokenID(t *testing.T) {
	service, db := newTestService(t)
	event, tier := seedEvent(t, db, 10, 0)
	ctx := context.Background()

	_, err := service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 7, OwnerAddress: "0xa",
	})
	require.NoError(t, err)

	_, err = service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 7, OwnerAddress: "0xb",
	})
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeDuplicate, apiErr.Code)
}

func TestRecordMint_UnknownTier(t *testing.T) {
	service, db := newTestService(t)
	event, _ := seedEvent(t, db, 10, 0)

	_, err := service.RecordMint(context.Background(), MintRequest{
		EventID: event.ID, TicketTypeID: 9999, TokenID: 1, OwnerAddress: "0xa",
	})
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeNotFound, apiErr.Code)
}

func TestRedeem_SingleUse(t *testing.T) {
	service, db := newTestService(t)
	event, tier := seedEvent(t, db, 10, 0)
	ctx := context.Background()

	_, err := service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 42, OwnerAddress: "0xholder",
	})
	require.NoError(t, err)

	redeemed, err := service.Redeem(ctx, 42, event.ID)
	require.NoError(t, err)
	assert.True(t, redeemed.Redeemed)
	require.NotNil(t, redeemed.RedeemedAt)
	assert.Equal(t, "0xholder", redeemed.Owner.Address)

	// Second scan reports the original redemption time.
	_, err = service.Redeem(ctx, 42, event.ID)
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeAlreadyScanned, apiErr.Code)

	reportedAt, ok := apiErr.Detail["redeemedAt"].(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, *redeemed.RedeemedAt, reportedAt, time.Second)
}

func TestRedeem_NotFound(t *testing.T) {
	service, db := newTestService(t)
	event, _ := seedEvent(t, db, 10, 0)

	_, err := service.Redeem(context.Background(), 999, event.ID)
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeNotFound, apiErr.Code)
}

func TestRedeem_TokenIDsScopedPerEvent(t *testing.T) {
	service, db := newTestService(t)
	event1, tier1 := seedEvent(t, db, 10, 0)
	ctx := context.Background()

	// Second event with its own token numbering.
	event2 := models.Event{
		OrganizerID:     event1.OrganizerID,
		Name:            "Other Show",
		Date:            time.Now().Add(48 * time.Hour),
		ContractAddress: "0xother",
		Transferable:    true,
		TicketTypes: []models.TicketType{
			{Name: "General", Price: decimal.NewFromInt(20), Capacity: 10},
		},
	}
	require.NoError(t, db.Create(&event2).Error)

	_, err := service.RecordMint(ctx, MintRequest{
		EventID: event1.ID, TicketTypeID: tier1.ID, TokenID: 5, OwnerAddress: "0xa",
	})
	require.NoError(t, err)
	_, err = service.RecordMint(ctx, MintRequest{
		EventID: event2.ID, TicketTypeID: event2.TicketTypes[0].ID, TokenID: 5, OwnerAddress: "0xb",
	})
	require.NoError(t, err)

	// Redeeming token 5 at event2 must not touch event1's ticket 5.
	_, err = service.Redeem(ctx, 5, event2.ID)
	require.NoError(t, err)

	var untouched models.Ticket
	require.NoError(t, db.Where("event_id = ? AND token_id = ?", event1.ID, 5).First(&untouched).Error)
	assert.False(t, untouched.Redeemed)
}

func TestRedeem_ConcurrentScansYieldOneSuccess(t *testing.T) {
	service, db := newTestService(t)
	event, tier := seedEvent(t, db, 10, 0)
	ctx := context.Background()

	_, err := service.RecordMint(ctx, MintRequest{
		EventID: event.ID, TicketTypeID: tier.ID, TokenID: 42, OwnerAddress: "0xholder",
	})
	require.NoError(t, err)

	const scanners = 8
	var wg sync.WaitGroup
	results := make(chan error, scanners)

	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Redeem(ctx, 42, event.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var apiErr *apperrors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, apperrors.CodeAlreadyScanned, apiErr.Code)
		conflicts++
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, scanners-1, conflicts)
}

package verification

import (
	"context"
	"testing"

	"github.com/mintpass/mintpass-go/internal/apperrors"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"
	"github.com/mintpass/mintpass-go/internal/services/identity"

	"github.com/glebarez/sqlite"
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

func TestRequestVerification_CreatesPendingWithLegacyMirror(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	request, err := service.RequestVerification(ctx, "0xorganizer", models.RequestTypeOrganizer)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, request.Status)
	assert.Equal(t, models.RequestTypeOrganizer, request.Type)

	var user models.User
	require.NoError(t, db.First(&user, request.UserID).Error)
	assert.Equal(t, models.VerificationPending, user.VerificationStatus)
	assert.Equal(t, models.RoleUser, user.Role)
}

func TestRequestVerification_VIPLeavesLegacyAlone(t *testing.T) {
	service, db := newTestService(t)

	request, err := service.RequestVerification(context.Background(), "0xvip", models.RequestTypeVIP)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.First(&user, request.UserID).Error)
	assert.Equal(t, models.VerificationUnverified, user.VerificationStatus)
}

func TestRequestVerification_IdempotentWhilePending(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	first, err := service.RequestVerification(ctx, "0xvip", models.RequestTypeVIP)
	require.NoError(t, err)

	second, err := service.RequestVerification(ctx, "0xvip", models.RequestTypeVIP)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&models.VerificationRequest{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRequestVerification_DifferentTypesCoexist(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	_, err := service.RequestVerification(ctx, "0xboth", models.RequestTypeOrganizer)
	require.NoError(t, err)
	_, err = service.RequestVerification(ctx, "0xboth", models.RequestTypeVIP)
	require.NoError(t, err)

	var count int64
	db.Model(&models.VerificationRequest{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestRequestVerification_InvalidType(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.RequestVerification(context.Background(), "0xuser", "SUPERSTAR")
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeValidation, apiErr.Code)
}

func TestResolve_ApproveOrganizer(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	request, err := service.RequestVerification(ctx, "0xorganizer", models.RequestTypeOrganizer)
	require.NoError(t, err)

	resolved, err := service.Resolve(ctx, request.ID, DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, resolved.Status)

	var user models.User
	require.NoError(t, db.First(&user, request.UserID).Error)
	assert.Equal(t, models.RoleOrganizer, user.Role)
	assert.Equal(t, models.VerificationVerified, user.VerificationStatus)
}

func TestResolve_ApproveVIP(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	request, err := service.RequestVerification(ctx, "0xvip", models.RequestTypeVIP)
	require.NoError(t, err)

	_, err = service.Resolve(ctx, request.ID, DecisionApprove)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.First(&user, request.UserID).Error)
	assert.True(t, user.IsVip)
	assert.Equal(t, models.RoleUser, user.Role)
}

func TestResolve_RejectLeavesUserUntouched(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	request, err := service.RequestVerification(ctx, "0xorganizer", models.RequestTypeOrganizer)
	require.NoError(t, err)

	resolved, err := service.Resolve(ctx, request.ID, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, resolved.Status)

	var user models.User
	require.NoError(t, db.First(&user, request.UserID).Error)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.False(t, user.IsVip)
}

func TestResolve_AlreadyResolvedConflicts(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	request, err := service.RequestVerification(ctx, "0xvip", models.RequestTypeVIP)
	require.NoError(t, err)

	_, err = service.Resolve(ctx, request.ID, DecisionApprove)
	require.NoError(t, err)

	_, err = service.Resolve(ctx, request.ID, DecisionReject)
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeAlreadyResolved, apiErr.Code)
}

func TestResolve_UnknownRequest(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Resolve(context.Background(), "no-such-id", DecisionApprove)
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeNotFound, apiErr.Code)
}

func TestResolveBatch_MixedTypesCommitTogether(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	organizerReq, err := service.RequestVerification(ctx, "0xorganizer", models.RequestTypeOrganizer)
	require.NoError(t, err)
	vipReq, err := service.RequestVerification(ctx, "0xvip", models.RequestTypeVIP)
	require.NoError(t, err)

	count, err := service.ResolveBatch(ctx, []string{organizerReq.ID, vipReq.ID}, DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var organizer models.User
	require.NoError(t, db.First(&organizer, organizerReq.UserID).Error)
	assert.Equal(t, models.RoleOrganizer, organizer.Role)

	var vip models.User
	require.NoError(t, db.First(&vip, vipReq.UserID).Error)
	assert.True(t, vip.IsVip)

	var approved int64
	db.Model(&models.VerificationRequest{}).Where("status = ?", models.RequestApproved).Count(&approved)
	assert.EqualValues(t, 2, approved)
}

func TestResolveBatch_SkipsAlreadyResolved(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.RequestVerification(ctx, "0xone", models.RequestTypeVIP)
	require.NoError(t, err)
	second, err := service.RequestVerification(ctx, "0xtwo", models.RequestTypeVIP)
	require.NoError(t, err)

	_, err = service.Resolve(ctx, first.ID, DecisionReject)
	require.NoError(t, err)

	count, err := service.ResolveBatch(ctx, []string{first.ID, second.ID}, DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResolveBatch_BatchApprovalSkipsLegacyMirror(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	request, err := service.RequestVerification(ctx, "0xorganizer", models.RequestTypeOrganizer)
	require.NoError(t, err)

	_, err = service.ResolveBatch(ctx, []string{request.ID}, DecisionApprove)
	require.NoError(t, err)

	// Only the single-resolution path maintains the legacy mirror.
	var user models.User
	require.NoError(t, db.First(&user, request.UserID).Error)
	assert.Equal(t, models.RoleOrganizer, user.Role)
	assert.Equal(t, models.VerificationPending, user.VerificationStatus)
}

func TestResolveBatch_EmptyIDSet(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.ResolveBatch(context.Background(), nil, DecisionApprove)
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeValidation, apiErr.Code)
}

func TestResolveBatch_InvalidDecision(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.ResolveBatch(context.Background(), []string{"r1"}, "MAYBE")
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeValidation, apiErr.Code)
}

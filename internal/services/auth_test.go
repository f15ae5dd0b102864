package services

import (
	"context"
	"testing"

	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Login(t *testing.T) {
	utils.SetJWTSecret("test-secret")
	db := openTestDB(t)
	seedUser(t, db, "ana", "user")
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 2})
	ctx := context.Background()

	resp, err := svc.Login(ctx, &LoginRequest{Username: " ana ", Password: "secret-ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana", resp.User.Username)
	require.NotNil(t, resp.User.LastLogin)

	claims, err := utils.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)

	for _, req := range []LoginRequest{
		{Username: "ana", Password: "wrong"},
		{Username: "nobody", Password: "x"},
	} {
		_, err = svc.Login(ctx, &req)
		assert.ErrorIs(t, err, ErrInvalidCredentials, req.Username)
	}
}

func TestAuthService_DisabledUser(t *testing.T) {
	db := openTestDB(t)
	u := seedUser(t, db, "bob", "user")
	require.NoError(t, db.Model(u).Update("is_active", false).Error)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})

	_, err := svc.Login(context.Background(), &LoginRequest{Username: "bob", Password: "secret-bob"})
	assert.ErrorIs(t, err, ErrUserDisabled)

	// a wrong password does not reveal that the account exists but is disabled
	_, err = svc.Login(context.Background(), &LoginRequest{Username: "bob", Password: "guess"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_CreateAdminIfNotExists(t *testing.T) {
	db := openTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1, AdminPassword: "bootstrap-pw"})
	ctx := context.Background()

	require.NoError(t, svc.CreateAdminIfNotExists(ctx))
	require.NoError(t, svc.CreateAdminIfNotExists(ctx))

	var admins []models.User
	require.NoError(t, db.Where("role = ?", models.RoleAdmin).Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.True(t, admins[0].IsAdmin())
	assert.True(t, utils.CheckPassword("bootstrap-pw", admins[0].Password))
}

func TestAuthService_ChangePassword(t *testing.T) {
	utils.SetJWTSecret("test-secret")
	db := openTestDB(t)
	u := seedUser(t, db, "cy", "user")
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})
	ctx := context.Background()

	err := svc.ChangePassword(ctx, u.ID, &ChangePasswordRequest{OldPassword: "nope", NewPassword: "newpass1"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = svc.ChangePassword(ctx, 999, &ChangePasswordRequest{OldPassword: "x", NewPassword: "newpass1"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, svc.ChangePassword(ctx, u.ID, &ChangePasswordRequest{OldPassword: "secret-cy", NewPassword: "newpass1"}))
	_, err = svc.Login(ctx, &LoginRequest{Username: "cy", Password: "newpass1"})
	assert.NoError(t, err)
}

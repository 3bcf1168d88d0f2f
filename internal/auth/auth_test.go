package auth

import (
	"securesend/internal/models"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	password := "mySecretPassword123"
	hash, err := HashPassword(password)

	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.NotEqual(t, password, hash)

	other, err := HashPassword(password)
	require.NoError(t, err)
	require.NotEqual(t, hash, other, "hashes must be salted")
}

func TestCheckPasswordHash(t *testing.T) {
	password := "mySecretPassword123"
	hash, err := HashPassword(password)
	require.NoError(t, err)

	require.True(t, CheckPasswordHash(password, hash), "Password should match the hash")
	require.False(t, CheckPasswordHash("wrongPassword", hash), "Wrong password should not match the hash")
	require.False(t, CheckPasswordHash(password, "not-a-hash"))
}

func TestGenerateAndVerifyJWT(t *testing.T) {
	secret := "my_super_secret_key_for_testing"
	account := &models.Account{
		ID:    123,
		Email: "a@x.com",
		Role:  models.RoleUser,
	}
	sessionID := uuid.New()
	expiresAt := time.Now().Add(30 * time.Minute)

	tokenString, err := GenerateJWT(account, sessionID, secret, expiresAt)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := VerifyJWT(tokenString, secret)
	require.NoError(t, err)
	require.NotNil(t, claims)
	require.Equal(t, account.ID, claims.AccountID)
	require.Equal(t, account.Email, claims.Email)
	require.Equal(t, models.RoleUser, claims.Role)
	require.Equal(t, sessionID, claims.SessionID())
	require.WithinDuration(t, expiresAt, claims.ExpiresAt.Time, 2*time.Second)

	_, err = VerifyJWT(tokenString, "wrong_secret")
	require.Error(t, err)
	require.ErrorIs(t, err, jwt.ErrSignatureInvalid)

	tokenStringExpired, err := GenerateJWT(account, sessionID, secret, time.Now().Add(-1*time.Minute))
	require.NoError(t, err)

	_, err = VerifyJWT(tokenStringExpired, secret)
	require.Error(t, err)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestSessionID_Malformed(t *testing.T) {
	claims := &AppClaims{}
	require.Equal(t, uuid.Nil, claims.SessionID())
}

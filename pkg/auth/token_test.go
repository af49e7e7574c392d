package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "shopflow", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()
	good, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	expired, err := MintAccessToken(cfg, now.Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	foreignIssuer := cfg
	foreignIssuer.Issuer = "someone-else"
	otherIssuer, err := MintAccessToken(foreignIssuer, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	unknownRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.UserRole("owner"),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	cases := map[string]string{
		"tampered signature": good[:strings.LastIndex(good, ".")+1] + "invalid",
		"expired":            expired,
		"wrong issuer":       otherIssuer,
		"unknown role":       unknownRole,
		"garbage":            "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(cfg, token)
			assert.Error(t, err)
		})
	}
}

func TestMintAccessTokenValidatesInput(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "root"})
	assert.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleCustomer})
	assert.Error(t, err)

	_, err = MintAccessToken(config.JWTConfig{}, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	assert.Error(t, err)
}

func TestSentinelErrors(t *testing.T) {
	_, err := MintAccessToken(config.JWTConfig{Secret: "s"}, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	assert.ErrorIs(t, err, ErrMissingIssuer)

	_, err = ParseAccessToken(config.JWTConfig{}, "anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestParseToleratesSmallClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	issued := time.Now().Add(-time.Duration(cfg.ExpirationMinutes)*time.Minute - 10*time.Second)
	token, err := MintAccessToken(cfg, issued, AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
}

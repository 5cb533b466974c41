package jwtauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "assent/pkg/domain-errors"
)

func newService(now *time.Time) *Service {
	return New("test-signing-key", "https://assent.test", "booking-frontend", time.Hour,
		WithClock(func() time.Time { return *now }),
	)
}

func TestGenerateAndValidate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(&now)

	token, err := svc.Generate("user-1", "sess-1")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "https://assent.test", claims.Issuer)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(&now)

	token, err := svc.Generate("user-1", "sess-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(&now)
	other := New("other-key", "https://assent.test", "booking-frontend", time.Hour,
		WithClock(func() time.Time { return now }),
	)

	token, err := other.Generate("user-1", "sess-1")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(&now)
	foreign := New("test-signing-key", "https://elsewhere.test", "booking-frontend", time.Hour,
		WithClock(func() time.Time { return now }),
	)

	token, err := foreign.Generate("user-1", "sess-1")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
}

func TestValidateRejectsUnsignedToken(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(&now)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{UserID: "user-1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.Error(t, err)
}

func TestGenerateRequiresUser(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(&now)

	_, err := svc.Generate("", "sess-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bookmeta/internal/config"
)

func newTestJWTService(expirationHours int) *JWTService {
	return NewJWTService(&config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-signing-minimum-32-bytes",
		ExpirationHours: expirationHours,
		Issuer:          "bookmeta",
	})
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := newTestJWTService(24)

	token, err := service.GenerateToken("calibre-host")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "calibre-host", claims.Subject)
	assert.Equal(t, "bookmeta", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	subject, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "calibre-host", subject)
}

func TestJWTService_UniqueTokenIDs(t *testing.T) {
	service := newTestJWTService(24)

	t1, err := service.GenerateToken("svc")
	require.NoError(t, err)
	t2, err := service.GenerateToken("svc")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2, "tokens issued in the same second still differ by jti")
}

func TestJWTService_EmptySubject(t *testing.T) {
	_, err := newTestJWTService(24).GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	service := newTestJWTService(1)
	token, err := service.GenerateToken("svc")
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTService_WrongSecret(t *testing.T) {
	token, err := newTestJWTService(24).GenerateToken("svc")
	require.NoError(t, err)

	other := NewJWTService(&config.JWTConfig{Secret: "a-completely-different-secret", ExpirationHours: 24, Issuer: "bookmeta"})
	_, err = other.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTService_WrongIssuer(t *testing.T) {
	token, err := newTestJWTService(24).GenerateToken("svc")
	require.NoError(t, err)

	other := NewJWTService(&config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-signing-minimum-32-bytes",
		ExpirationHours: 24,
		Issuer:          "someone-else",
	})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "svc",
		Issuer:    "bookmeta",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestJWTService(24).ValidateToken(unsigned)
	assert.Error(t, err)
}

func TestJWTService_MalformedAndEmpty(t *testing.T) {
	service := newTestJWTService(24)

	_, err := service.ValidateToken("")
	assert.Error(t, err)

	_, err = service.ValidateToken("not.a.jwt")
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := newTestJWTService(24)
	token, err := service.GenerateToken("svc")
	require.NoError(t, err)

	got, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	subject, err := got.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "svc", subject)

	_, err = service.AsTokenValidator().ValidateToken("garbage")
	assert.Error(t, err)
}

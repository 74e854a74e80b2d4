package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/repository"
	apperrors "github.com/spec-kit/ticket-assist/pkg/errorutil"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 10)
	user := domain.User{ID: "u-1", Email: "a@example.com", Role: domain.RoleModerator}

	token, expiresAt, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, domain.RoleModerator, claims.Role)
	assert.Equal(t, "a@example.com", claims.Email)

	_, err = NewTokenManager("other", 10).ParseToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	tm := NewTokenManager("secret", 10)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Role:             domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func newAuthApp(t *testing.T, users repository.UserRepository, tm *TokenManager, roles ...domain.Role) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/", NewAuthMiddleware(tm, users).Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(string(principal.Role))
	})
	return app
}

func call(t *testing.T, app *fiber.App, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAuthMiddleware_StoredRoleWins(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	user := &domain.User{Email: "mod@example.com", Role: domain.RoleModerator}
	require.NoError(t, users.Create(context.Background(), user))

	tm := NewTokenManager("secret", 10)
	forged := *user
	forged.Role = domain.RoleAdmin
	token, _, err := tm.GenerateToken(forged)
	require.NoError(t, err)

	status, body := call(t, newAuthApp(t, users, tm), token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "moderator", body)

	status, _ = call(t, newAuthApp(t, users, tm, domain.RoleAdmin), token)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	tm := NewTokenManager("secret", 10)
	app := newAuthApp(t, users, tm)

	status, _ := call(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	ghost, _, err := tm.GenerateToken(domain.User{ID: "ghost", Role: domain.RoleUser})
	require.NoError(t, err)
	status, _ = call(t, app, ghost)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := call(t, newAuthApp(t, nil, tm), ghost)
	assert.Equal(t, http.StatusOK, status, "without a user store the claims are trusted")
	assert.Equal(t, "user", body)
}

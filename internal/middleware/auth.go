package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"staging-studio-backend/internal/config"
	"staging-studio-backend/internal/identity"
	"staging-studio-backend/internal/models"
)

const (
	UserIDKey = "user_id"
	EmailKey  = "email"
	NameKey   = "name"
	TokenKey  = "token"
	UserKey   = "user"
)

// Claims is the part of a Supabase access token the server reads.
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Name returns the display name from the user metadata, if any.
func (c *Claims) Name() string {
	for _, key := range []string{"full_name", "name"} {
		if v, ok := c.UserMetadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Verifier checks access tokens either with the project's HS256 secret or
// against the project's JWKS endpoint.
type Verifier struct {
	secret []byte
	jwks   *keyfunc.JWKS
}

func NewVerifier(cfg *config.Config, logger *zap.Logger) (*Verifier, error) {
	v := &Verifier{secret: []byte(cfg.SupabaseJWTSecret)}
	if cfg.SupabaseJWKSURL == "" {
		return v, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	jwks, err := keyfunc.Get(cfg.SupabaseJWKSURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshTimeout:    10 * time.Second,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to refresh JWKS", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS: %w", err)
	}
	v.jwks = jwks
	return v, nil
}

// NewSecretVerifier verifies HS256 tokens only.
func NewSecretVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Close stops the JWKS refresh goroutine.
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func (v *Verifier) keyFor(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
	}
	return v.jwks.Keyfunc(token)
}

// Parse validates tokenString and returns its claims.
func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	methods := []string{"HS256"}
	if v.jwks != nil {
		methods = append(methods, "RS256", "ES256")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFor, jwt.WithValidMethods(methods))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("missing user id in token")
	}
	return claims, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header. A
// URL-encoded token is decoded.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}
	if decoded, err := url.QueryUnescape(token); err == nil {
		token = decoded
	}
	if strings.Count(token, ".") != 2 {
		return "", errors.New("JWT token must have 3 parts separated by dots")
	}
	return token, nil
}

func tokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return "token signature is invalid - check JWT secret"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed - ensure you're using a valid Supabase JWT token"
	}
	return err.Error()
}

// AuthMiddleware validates the bearer token and stores the subject, email
// and raw token in the context.
func AuthMiddleware(v *Verifier) gin.HandlerFunc {
	return authenticate(v, func(c *gin.Context) string {
		return c.GetHeader("Authorization")
	})
}

// StreamAuthMiddleware is AuthMiddleware for event streams. EventSource
// cannot set headers, so an access_token query parameter is accepted when
// the header is absent.
func StreamAuthMiddleware(v *Verifier) gin.HandlerFunc {
	return authenticate(v, func(c *gin.Context) string {
		if header := c.GetHeader("Authorization"); header != "" {
			return header
		}
		if q := c.Query("access_token"); q != "" {
			return "Bearer " + q
		}
		return ""
	})
}

func authenticate(v *Verifier, header func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := BearerToken(header(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: err.Error(), Code: "UNAUTHORIZED"})
			c.Abort()
			return
		}

		claims, err := v.Parse(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid token", Message: tokenError(err), Code: "UNAUTHORIZED"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(EmailKey, claims.Email)
		c.Set(NameKey, claims.Name())
		c.Set(TokenKey, tokenString)
		c.Next()
	}
}

// UserSource derives the user of a verified session.
type UserSource interface {
	User(ctx context.Context, session *identity.Session) (*models.User, error)
}

// SessionFromContext rebuilds the session AuthMiddleware stored.
func SessionFromContext(c *gin.Context) (*identity.Session, bool) {
	id := c.GetString(UserIDKey)
	if id == "" {
		return nil, false
	}
	return &identity.Session{
		UserID: id,
		Email:  c.GetString(EmailKey),
		Name:   c.GetString(NameKey),
		Token:  c.GetString(TokenKey),
	}, true
}

// IdentityMiddleware resolves the caller's role from the admin allow-list
// and the editor roster. It must run after AuthMiddleware.
func IdentityMiddleware(users UserSource, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		session, ok := SessionFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: "missing session", Code: "UNAUTHORIZED"})
			c.Abort()
			return
		}
		user, err := users.User(c.Request.Context(), session)
		if err != nil {
			logger.Warn("identity resolution rejected request", zap.String("user_id", session.UserID), zap.Error(err))
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: "could not resolve identity", Code: "UNAUTHORIZED"})
			c.Abort()
			return
		}
		c.Set(UserKey, *user)
		c.Next()
	}
}

// CurrentUser returns the user IdentityMiddleware stored.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return models.User{}, false
	}
	u, ok := v.(models.User)
	return u, ok
}

// RequireStaff rejects callers that are neither admin nor editor.
func RequireStaff() gin.HandlerFunc {
	return requireRole(func(r models.Role) bool { return r.IsStaff() })
}

func RequireAdmin() gin.HandlerFunc {
	return requireRole(func(r models.Role) bool { return r == models.RoleAdmin })
}

func requireRole(allowed func(models.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !allowed(user.Role) {
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Message: "insufficient role", Code: "FORBIDDEN"})
			c.Abort()
			return
		}
		c.Next()
	}
}

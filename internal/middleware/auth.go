package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	adapter "github.com/gwatts/gin-adapter"

	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
)

// UserIDKey is set by authenticators that do not go through the JWT
// validator, such as the development header auth.
const UserIDKey = "user_id"

// JWT validates Auth0 access tokens for the given audience.
func JWT(domain, audience string) (gin.HandlerFunc, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse issuer url: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)
	v, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("set up jwt validator: %w", err)
	}

	m := jwtmiddleware.New(v.ValidateToken,
		jwtmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"Authentication required"}`))
		}),
	)
	return adapter.Wrap(m.CheckJWT), nil
}

// HeaderAuth trusts the X-User-ID header. Only for local development and
// tests.
func HeaderAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// GetUserID returns the subject of the validated token, or the user set by
// HeaderAuth.
func GetUserID(c *gin.Context) (string, bool) {
	if claims, ok := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims); ok {
		return claims.RegisteredClaims.Subject, true
	}
	if id := c.GetString(UserIDKey); id != "" {
		return id, true
	}
	return "", false
}

// ForwardToken passes the caller's bearer token on to upstream calls made
// with the request context.
func ForwardToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && token != "" {
			c.Request = c.Request.WithContext(rentalapi.WithToken(c.Request.Context(), token))
		}
		c.Next()
	}
}

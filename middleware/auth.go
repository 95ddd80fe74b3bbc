package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"naskahcollab/internal/document/model"
	"naskahcollab/pkg/logger"
	"naskahcollab/pkg/metrics"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores a verified identity in ctx.
func WithIdentity(ctx context.Context, id model.User) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity placed by the auth middleware.
func IdentityFrom(ctx context.Context) (model.User, bool) {
	id, ok := ctx.Value(identityKey).(model.User)
	return id, ok
}

// Auth verifies HS256 tokens signed with secret.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

func tokenFrom(r *http.Request) string {
	// For WebSockets, tokens are often passed in the query string
	// because the browser's WebSocket API doesn't support custom headers.
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		authHeader := r.Header.Get("Authorization")
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}
	return strings.TrimSpace(tokenString)
}

// Verify validates the token and returns its claims.
func (a *Auth) Verify(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: could not parse token claims", model.ErrUnauthenticated)
	}
	return claims, nil
}

func reject(w http.ResponseWriter, reason, msg string) {
	metrics.RecordAuthFailure(reason)
	http.Error(w, "Unauthorized: "+msg, http.StatusUnauthorized)
}

// Handshake guards the WebSocket endpoint. It requires token, userId and
// userName, and the token subject must match userId.
func (a *Auth) Handshake(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tokenString := tokenFrom(r)
		userID := strings.TrimSpace(q.Get("userId"))
		userName := strings.TrimSpace(q.Get("userName"))

		if tokenString == "" || userID == "" || userName == "" {
			reject(w, "missing", "token, userId and userName are required")
			return
		}

		claims, err := a.Verify(tokenString)
		if err != nil {
			logger.Sugar.Warnf("Invalid token for user %s: %v", userID, err)
			reject(w, "invalid", "Invalid or expired token")
			return
		}
		if sub, _ := claims["sub"].(string); sub != userID {
			logger.Sugar.Warnf("Token subject %q does not match userId %q", sub, userID)
			reject(w, "invalid", "token does not belong to userId")
			return
		}

		email, _ := claims["email"].(string)
		if email == "" {
			email = q.Get("email")
		}
		id := model.User{ID: userID, Name: userName, Email: email}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// AuthMiddleware guards REST endpoints; only the token is required.
func (a *Auth) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFrom(r)
		if tokenString == "" {
			reject(w, "missing", "No token provided")
			return
		}

		claims, err := a.Verify(tokenString)
		if err != nil {
			logger.Sugar.Warnf("Invalid token: %v", err)
			reject(w, "invalid", "Invalid or expired token")
			return
		}
		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			reject(w, "invalid", "User ID (sub) claim is missing or invalid")
			return
		}
		name, _ := claims["name"].(string)
		email, _ := claims["email"].(string)
		id := model.User{ID: userID, Name: name, Email: email}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

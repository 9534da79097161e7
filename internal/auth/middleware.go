package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "authUserID"

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// Middlewares returns the auth chain for protected routes. An empty secret disables authentication.
func Middlewares(secret, audience string, logger *zap.Logger) []gin.HandlerFunc {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	return []gin.HandlerFunc{JWTMiddleware(secret, audience, logger)}
}

// JWTMiddleware validates HS256 bearer tokens and injects the subject as the user identity.
func JWTMiddleware(secret, audience string, logger *zap.Logger) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	audience = strings.TrimSpace(audience)
	logger = logger.Named("auth")

	return func(c *gin.Context) {
		subject, err := authenticate(c.Request.Header.Get("Authorization"), secret, audience)
		if err != nil {
			logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": err.Error()})
			return
		}

		ctx := context.WithValue(c.Request.Context(), userIDKey, subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(userIDKey), subject)

		c.Next()
	}
}

func authenticate(header, secret, audience string) (string, error) {
	tokenString, err := extractBearerToken(header)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", errors.New("missing JWT secret")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	if audience != "" && !containsAudience(claims.Audience, audience) {
		return "", errors.New("invalid audience")
	}
	if claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}

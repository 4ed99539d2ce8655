package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoSigningKey is returned when a JWTConfig has no key to sign or verify with.
var ErrNoSigningKey = errors.New("jwt signing key is empty")

// accessTokenParam lets EventSource clients, which cannot set headers,
// authenticate the SSE stream.
const accessTokenParam = "access_token"

// Claims are the JWT claims accepted by the admin API. Tokens are issued to
// operators and to the SaaS backend that enqueues tasks.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// JWTConfig holds the HS256 key and the issuer that tokens must carry.
type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	ExpiresIn  time.Duration
}

// GenerateToken signs an HS256 token for subject. Each token gets a UUIDv7 jti.
func GenerateToken(cfg JWTConfig, subject string, scopes []string) (string, time.Time, error) {
	if len(cfg.SigningKey) == 0 {
		return "", time.Time{}, ErrNoSigningKey
	}
	now := time.Now()
	exp := now.Add(cfg.ExpiresIn)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken verifies an HS256 token: signature, expiry, not-before and,
// when cfg.Issuer is set, the issuer. A token without a subject is rejected.
func (cfg JWTConfig) ValidateToken(raw string) (*Claims, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrNoSigningKey
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// JWTAuth authenticates the request and records the caller's subject and
// scopes on both the gin context and the request context.
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		claims, err := cfg.ValidateToken(raw)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			unauthorized(c, "token expired")
			return
		case err != nil:
			unauthorized(c, "invalid token")
			return
		}

		c.Set(string(ctxKeySubject), claims.Subject)
		c.Set(string(ctxKeyScopes), claims.Scopes)
		c.Request = c.Request.WithContext(SetPrincipal(c.Request.Context(), claims.Subject, claims.Scopes))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if q := c.Query(accessTokenParam); q != "" {
			return q, nil
		}
		return "", errors.New("missing authorization header")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errors.New("invalid authorization header format")
	}
	return token, nil
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": msg})
}

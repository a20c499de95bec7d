package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

const DefaultAccessTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

type AuthService interface {
	// IssueToken signs a bearer token for userID. The dev server hands these out
	// without credentials.
	IssueToken(ctx context.Context, userID uuid.UUID) (string, time.Time, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type JWTClaims struct {
	jwt.RegisteredClaims
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey string
	accessTTL    time.Duration
	now          func() time.Time
}

func NewAuthService(log *logger.Logger, jwtSecretKey string, accessTTL time.Duration) (AuthService, error) {
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &authService{
		log:          log.With("service", "AuthService"),
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
		now:          time.Now,
	}, nil
}

func (as *authService) GetAccessTTL() time.Duration { return as.accessTTL }

func (as *authService) IssueToken(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	if userID == uuid.Nil {
		return "", time.Time{}, apierr.Validation("user_id", errors.New("user id required"))
	}
	now := as.now()
	expires := now.Add(as.accessTTL)
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	as.log.Debug("issued token", "user_id", userID.String(), "expires_at", expires)
	return signed, expires, nil
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithTimeFunc(as.now))
	if err != nil {
		return ctx, apierr.New(apierr.KindAuthorization, http.StatusUnauthorized, "unauthorized", fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, apierr.New(apierr.KindAuthorization, http.StatusUnauthorized, "unauthorized", ErrInvalidToken)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.New(apierr.KindAuthorization, http.StatusUnauthorized, "unauthorized", fmt.Errorf("%w: bad subject", ErrInvalidToken))
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{TokenString: tokenString, UserID: userID}), nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// Claims is the JWT payload issued at login
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService handles registration, login and token verification
type AuthService struct {
	users      UserRepository
	portfolios PortfolioRepository
	secret     []byte
	tokenTTL   time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(users UserRepository, portfolios PortfolioRepository, cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		users:      users,
		portfolios: portfolios,
		secret:     []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenTTL,
	}
}

// RegisterInput represents input for registering a user
type RegisterInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Currency  string `json:"currency"`
}

// Register creates a new user along with their default portfolio
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Username == "" {
		return nil, invalidInput("username is required")
	}
	if len(in.Password) < 8 {
		return nil, invalidInput("password must be at least 8 characters")
	}

	preferred := types.NormalizeCurrency(in.Currency)
	if in.Currency == "" {
		preferred = "usd"
	}
	if !preferred.Valid() {
		return nil, invalidCurrency(preferred)
	}

	user := &models.User{
		Username:          in.Username,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Cash:              decimal.Zero,
		PreferredCurrency: preferred,
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.portfolios.Create(ctx, &models.Portfolio{
		OwnerID:   user.ID,
		Name:      "Default",
		Currency:  preferred,
		IsDefault: true,
	}); err != nil {
		// Back out the user row so a retry does not hit USERNAME_TAKEN
		// against an account that cannot trade
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			logging.FromContext(ctx).WithError(delErr).WithField("user", user.ID).
				Error("Failed to remove user after portfolio create failure")
		}
		return nil, err
	}

	return user, nil
}

// Login verifies credentials and issues a signed token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		// Same failure for unknown user and bad password
		return "", nil, unauthorized()
	}
	if !user.CheckPassword(password) {
		return "", nil, unauthorized()
	}

	now := time.Now()
	claims := Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, user, nil
}

// ParseToken verifies a token and returns its claims
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, unauthorized()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, unauthorized()
	}
	return claims, nil
}

func unauthorized() error {
	return &types.ServiceError{
		Code:    types.ErrUnauthorized,
		Message: "invalid credentials",
	}
}

package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/crystal-mush/kmud/pkg/service"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned by AuthService.Login for any bad
// login or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims holds the JWT claims for an authenticated account.
type Claims struct {
	AccountID int    `json:"account_id"`
	Login     string `json:"login"`
	jwt.RegisteredClaims
}

// AuthService issues and checks account tokens used by the web client.
type AuthService struct {
	accounts *service.AccountService
	jwtKey   []byte
	expiry   time.Duration
	now      func() time.Time
}

// NewAuthService creates an auth service. If jwtSecret is empty, a random
// 32-byte key is generated, so tokens do not survive a restart.
func NewAuthService(accounts *service.AccountService, jwtSecret string, expiry time.Duration) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthService{
		accounts: accounts,
		jwtKey:   key,
		expiry:   expiry,
		now:      time.Now,
	}
}

// Login checks a login and password and returns a signed token.
func (a *AuthService) Login(login, password string) (string, error) {
	acct, err := a.accounts.Authenticate(login, password)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	now := a.now()
	claims := Claims{
		AccountID: acct.ID,
		Login:     acct.Login,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(acct.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "kmud",
		},
	}
	return a.sign(claims)
}

// ValidateToken parses and validates a token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	}, jwt.WithIssuer("kmud"), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID == 0 {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// RefreshToken returns a new token with a fresh expiry for a valid one.
func (a *AuthService) RefreshToken(tokenStr string) (string, error) {
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}
	now := a.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.expiry))
	return a.sign(*claims)
}

func (a *AuthService) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtKey)
}

// GenerateJWTSecret returns a random hex secret suitable for jwt_secret.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

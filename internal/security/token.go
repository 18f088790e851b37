package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"portfolio/internal/config"
	"portfolio/internal/ids"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is shared by access and refresh tokens; the two kinds are told apart by the
// secret they are signed with, never by a claim.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

type IssuerOption func(*TokenIssuer)

// WithClock overrides the time source used when minting tokens.
func WithClock(now func() time.Time) IssuerOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

func NewTokenIssuer(cfg config.SecurityConfig, opts ...IssuerOption) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	issuer := &TokenIssuer{
		accessSecret:  []byte(cfg.JWTAccessSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.JWTAccessTTL,
		refreshTTL:    cfg.JWTRefreshTTL,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

func (t *TokenIssuer) IssuePair(userID string) (TokenPair, error) {
	access, accessExp, err := t.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := t.sign(userID, t.refreshSecret, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (t *TokenIssuer) IssueAccess(userID string) (string, time.Time, error) {
	return t.sign(userID, t.accessSecret, t.accessTTL)
}

func (t *TokenIssuer) sign(userID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ids.New(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, expiresAt, nil
}

func (t *TokenIssuer) ParseAccess(tokenStr string) (*Claims, error) {
	return t.parse(tokenStr, t.accessSecret)
}

func (t *TokenIssuer) ParseRefresh(tokenStr string) (*Claims, error) {
	return t.parse(tokenStr, t.refreshSecret)
}

// parse returns ErrTokenExpired only for an otherwise valid token whose exp has
// passed, so clients can tell "refresh and retry" apart from "log in again".
func (t *TokenIssuer) parse(tokenStr string, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// HashToken is the lookup key persisted for refresh tokens; raw tokens are never stored.
func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	repo "github.com/ovaphlow/splashops/service-core/internal/session/repo"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidRefresh = errors.New("invalid refresh token")
	// ErrSubjectRevoked is wrapped by a SubjectLoader when the user exists
	// no more or may no longer sign in.
	ErrSubjectRevoked = errors.New("subject may no longer sign in")
)

type Config struct {
	Issuer        string
	PrivateKeyPEM string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		Issuer:        os.Getenv("JWT_ISSUER"),
		PrivateKeyPEM: os.Getenv("JWT_PRIVATE_KEY_PEM"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "splashops"
	}
	if d, err := time.ParseDuration(os.Getenv("ACCESS_TOKEN_TTL")); err == nil && d > 0 {
		cfg.AccessTTL = d
	}
	if d, err := time.ParseDuration(os.Getenv("REFRESH_TOKEN_TTL")); err == nil && d > 0 {
		cfg.RefreshTTL = d
	}
	return cfg
}

// RefreshStore persists opaque refresh tokens.
type RefreshStore interface {
	Save(ctx context.Context, token string, userID int64, clientID string, expiresAt time.Time) (int64, error)
	Find(ctx context.Context, token string, now time.Time) (*repo.RefreshSession, error)
	Take(ctx context.Context, token string, now time.Time) (*repo.RefreshSession, error)
	Delete(ctx context.Context, token string) error
	DeleteForUser(ctx context.Context, userID int64) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

var _ RefreshStore = (*repo.RefreshRepo)(nil)

// SubjectLoader reloads the current state of a user. Errors wrapping
// ErrSubjectRevoked deny the user; any other error is a lookup failure.
type SubjectLoader func(ctx context.Context, userID int64) (Subject, error)

// Service signs and verifies access tokens and manages refresh sessions.
type Service struct {
	key        *rsa.PrivateKey
	kid        string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshStore
	clock      clockwork.Clock
}

// NewService builds a Service. Without a configured PEM key a fresh RSA key
// is generated, so tokens do not survive a restart.
func NewService(cfg Config, store RefreshStore, clock clockwork.Clock) (*Service, error) {
	var (
		k   *rsa.PrivateKey
		err error
	)
	if cfg.PrivateKeyPEM != "" {
		k, err = jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	} else {
		k, err = rsa.GenerateKey(rand.Reader, 2048)
	}
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&k.PublicKey)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(pub)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Service{
		key:        k,
		kid:        base64.RawURLEncoding.EncodeToString(h[:8]),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		store:      store,
		clock:      clock,
	}, nil
}

// NewSessionService wires the postgres refresh store.
func NewSessionService(db *sqlx.DB, cfg Config) (*Service, error) {
	return NewService(cfg, repo.NewRefreshRepo(db), nil)
}

type accessClaims struct {
	Email    string `json:"email"`
	Position string `json:"position,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an access token for sub and persists a new refresh token.
func (s *Service) Issue(ctx context.Context, sub Subject, clientID string) (*Tokens, error) {
	now := s.clock.Now()
	claims := accessClaims{
		Email:    sub.Email,
		Position: sub.Position,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(sub.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return nil, err
	}

	rtBytes := make([]byte, 32)
	if _, err := rand.Read(rtBytes); err != nil {
		return nil, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(rtBytes)
	if _, err := s.store.Save(ctx, refresh, sub.UserID, clientID, now.Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("save refresh session: %w", err)
	}

	return &Tokens{
		AccessToken:  signed,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// Parse verifies an access token and returns its session.
func (s *Service) Parse(token string) (*Session, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Session{
		Subject:   Subject{UserID: id, Email: claims.Email, Position: claims.Position},
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh exchanges a refresh token for a new token pair. The token is
// consumed only once the user has been reloaded: a revoked user loses it, a
// failed lookup leaves it in place for a retry.
func (s *Service) Refresh(ctx context.Context, refreshToken string, load SubjectLoader) (*Tokens, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefresh
	}
	rs, err := s.store.Find(ctx, refreshToken, s.clock.Now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("find refresh session: %w", err)
	}
	sub, err := load(ctx, rs.UserID)
	if err != nil {
		if !errors.Is(err, ErrSubjectRevoked) {
			return nil, fmt.Errorf("load subject: %w", err)
		}
		if derr := s.store.Delete(ctx, refreshToken); derr != nil {
			return nil, fmt.Errorf("drop revoked refresh session: %w", derr)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}
	// a concurrent refresh may have taken it since Find
	if _, err := s.store.Take(ctx, refreshToken, s.clock.Now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("take refresh session: %w", err)
	}
	return s.Issue(ctx, sub, rs.ClientID)
}

// Revoke drops a refresh token. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	return s.store.Delete(ctx, refreshToken)
}

// RevokeAll drops every refresh session of userID.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	return s.store.DeleteForUser(ctx, userID)
}

// PurgeExpired removes expired refresh sessions.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.PurgeExpired(ctx, s.clock.Now())
}

// JWKS returns the public signing key as a JSON Web Key Set.
func (s *Service) JWKS() map[string]any {
	pub := s.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}

package export

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidDownloadToken is returned by Verify for tokens that are
// malformed, tampered with, or past their expiry.
var ErrInvalidDownloadToken = errors.New("invalid download token")

// Grant is a time-limited, single-purpose download reference for a
// completed export artifact. Its validity window is the remaining time
// until the job's expiry; minting a grant never extends retention.
type Grant struct {
	JobID     string
	Token     string
	URL       string
	ExpiresAt time.Time
}

// downloadClaims are the claims carried by a download token.
type downloadClaims struct {
	jwt.RegisteredClaims

	Kind   Kind   `json:"kind"`
	Format Format `json:"fmt"`
}

// GateConfig holds the dependencies of the download gate.
type GateConfig struct {
	Repository Repository
	Clock      Clock
	Logger     zerolog.Logger

	// SigningKey signs download tokens (HS256).
	SigningKey string

	// Issuer is the iss claim on minted tokens.
	Issuer string

	// BaseURL prefixes minted download URLs, e.g. "https://api.quadra.app".
	BaseURL string
}

// Gate decides whether a caller may obtain a download reference for a job
// and is the only component allowed to mint one. Looking up an overdue
// completed job lazily flips it to expired, so this nominally-read
// operation has an observable write.
type Gate struct {
	repo       Repository
	clock      Clock
	logger     zerolog.Logger
	signingKey []byte
	issuer     string
	baseURL    string
}

// NewGate creates a download gate.
func NewGate(cfg GateConfig) *Gate {
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "quadra-exports-api"
	}
	return &Gate{
		repo:       cfg.Repository,
		clock:      clock,
		logger:     cfg.Logger,
		signingKey: []byte(cfg.SigningKey),
		issuer:     issuer,
		baseURL:    cfg.BaseURL,
	}
}

// RequestDownload validates the job's state and expiry, then mints a
// download grant. Fails with ErrJobNotFound, ErrNotReady (job not yet
// completed) or ErrExpired (artifact past retention; the job is flipped to
// expired as a side effect, idempotently on repeated calls).
func (g *Gate) RequestDownload(ctx context.Context, id string) (*Grant, error) {
	job, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := g.clock.Now()

	switch job.Status {
	case StatusPending, StatusProcessing:
		return nil, ErrNotReady
	case StatusFailed:
		return nil, ErrNotReady
	case StatusExpired:
		return nil, ErrExpired
	}

	if !job.DownloadableAt(now) {
		if _, err := g.repo.Update(ctx, id, markExpired(now)); err != nil && !errors.Is(err, errAlreadyCurrent) {
			g.logger.Warn().Err(err).Str("export_id", id).Msg("lazy expiry failed")
		}
		return nil, ErrExpired
	}

	return g.mint(job, now)
}

// mint signs a token whose expiry equals the job's artifact expiry.
func (g *Gate) mint(job *Job, now time.Time) (*Grant, error) {
	expiresAt := now.Add(DefaultRetentionWindow)
	if job.ExpiresAt != nil {
		expiresAt = *job.ExpiresAt
	}

	claims := downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   job.ID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
		Kind:   job.Kind,
		Format: job.Format,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing download token: %w", err)
	}

	grant := &Grant{
		JobID:     job.ID,
		Token:     token,
		URL:       fmt.Sprintf("%s/v1/exports/%s/artifact?token=%s", g.baseURL, job.ID, url.QueryEscape(token)),
		ExpiresAt: expiresAt,
	}

	g.logger.Debug().
		Str("export_id", job.ID).
		Time("expires_at", expiresAt).
		Msg("download grant issued")

	return grant, nil
}

// Verify checks a download token's signature and expiry and returns the
// job id it grants access to.
func (g *Gate) Verify(token string) (string, error) {
	claims := &downloadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.signingKey, nil
	},
		jwt.WithIssuer(g.issuer),
		jwt.WithTimeFunc(g.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidDownloadToken
	}
	return claims.Subject, nil
}

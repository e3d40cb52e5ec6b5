// Package identity implements the anonymous-identity issuance protocol:
// the two-phase pairing handshake, backup and QR hand-off token issuance,
// and exchange of hand-off tokens for fresh bearer tokens.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/geoscout/geoscout/internal/auth"
	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/models"
)

// TokenKind selects which hand-off policy an exchange token is minted under.
type TokenKind string

const (
	KindQR     TokenKind = "qr"
	KindBackup TokenKind = "backup"
)

// displayIDAttempts bounds the collision-check loop when generating a new
// display id. The id space is ~8100 values so a handful of retries is plenty
// for the deployment scale.
const displayIDAttempts = 10

// Service runs the issuance protocol over a record store.
type Service struct {
	identities interfaces.IdentityStore
	codec      *auth.Codec
	pairings   *auth.PairingCache
	limiter    *auth.RateLimiter
	limits     *common.LimitsConfig
	logger     *common.Logger
}

// NewService creates an identity service. limits is read per request so
// runtime configuration changes take effect immediately.
func NewService(logger *common.Logger, identities interfaces.IdentityStore, codec *auth.Codec, pairings *auth.PairingCache, limiter *auth.RateLimiter, limits *common.LimitsConfig) *Service {
	return &Service{
		identities: identities,
		codec:      codec,
		pairings:   pairings,
		limiter:    limiter,
		limits:     limits,
		logger:     logger,
	}
}

// BeginPairing starts the handshake for a client UUID and returns the
// one-time pairing token. Limited per IP+uuid.
func (s *Service) BeginPairing(ctx context.Context, clientIP, clientUUID string) (string, error) {
	if err := s.limiter.Check(s.limits.BeginAttempts, auth.HashKey("begin", clientIP, clientUUID)); err != nil {
		return "", err
	}

	secret, err := s.pairings.Begin(clientUUID)
	if err != nil {
		return "", err
	}

	s.logger.Debug().Str("uuid", clientUUID).Msg("Pairing started")
	return secret, nil
}

// CompletePairing consumes the pairing token, creates the identity record,
// and mints its first bearer token. The consumed pairing secret becomes the
// token id on the access allow-list, binding the bearer token to the
// handshake that produced it.
//
// Order is create record, mint token, append token id. A failure after the
// record exists leaves an identity with an empty allow-list; that record is
// unreachable and harmless, and the client simply retries the handshake.
func (s *Service) CompletePairing(ctx context.Context, clientIP, clientUUID, pairingToken string) (string, error) {
	// keys are scoped per operation so each endpoint gets its own window
	if err := s.limiter.Check(s.limits.CompleteAttempts, auth.HashKey("complete", clientIP, clientUUID)); err != nil {
		return "", err
	}

	secret, err := s.pairings.Complete(clientUUID, pairingToken)
	if err != nil {
		return "", err
	}

	record, err := s.createRecord(ctx)
	if err != nil {
		return "", err
	}

	token, err := s.codec.Issue(record.DisplayID, record.RecordID, secret, s.codec.Policies().App)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	if err := s.identities.AppendTokenID(ctx, record.RecordID, secret); err != nil {
		s.logger.Error().Err(err).Str("record_id", record.RecordID).Msg("Failed to store token id")
		return "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	s.logger.Info().
		Str("display_id", record.DisplayID).
		Str("record_id", record.RecordID).
		Msg("Identity registered")
	return token, nil
}

// IssueExchangeToken mints a QR or backup hand-off token for the identity
// behind a verified bearer token. The returned name is the identity's display
// id; backup clients use it as the suggested file name.
func (s *Service) IssueExchangeToken(ctx context.Context, clientIP, clientUUID, appToken string, kind TokenKind) (token, name string, err error) {
	if err := s.limiter.Check(s.limits.IssueAttempts, auth.HashKey("issue", clientIP, clientUUID)); err != nil {
		return "", "", err
	}
	if _, err := uuid.Parse(clientUUID); err != nil {
		return "", "", auth.ErrInvalidUUID
	}

	record, _, err := s.Authenticate(ctx, appToken)
	if err != nil {
		return "", "", err
	}

	policy := s.codec.Policies().QR
	if kind == KindBackup {
		policy = s.codec.Policies().Backup
	}

	tokenID := newTokenID(clientUUID)
	token, err = s.codec.Issue(record.DisplayID, record.RecordID, tokenID, policy)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	if err := s.identities.AppendBackupTokenID(ctx, record.RecordID, tokenID); err != nil {
		return "", "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	s.logger.Info().
		Str("display_id", record.DisplayID).
		Str("kind", string(kind)).
		Msg("Exchange token issued")
	return token, record.DisplayID, nil
}

// ExchangeToken trades a QR or backup hand-off token for a fresh bearer
// token on the same identity. The policy is picked by the token's audience
// before the real verification. Hand-off tokens are not revoked on use; a
// backup file stays usable until its signed expiry.
func (s *Service) ExchangeToken(ctx context.Context, clientIP, exchangeToken string) (string, error) {
	if err := s.limiter.Check(s.limits.ExchangeAttempts, auth.HashKey("exchange", clientIP)); err != nil {
		return "", err
	}

	audience, err := s.codec.PeekAudience(exchangeToken)
	if err != nil {
		return "", auth.ErrInvalidUserID
	}

	var policy auth.Policy
	switch audience {
	case s.codec.Policies().QR.Audience:
		policy = s.codec.Policies().QR
	case s.codec.Policies().Backup.Audience:
		policy = s.codec.Policies().Backup
	default:
		return "", auth.ErrInvalidUserID
	}

	claims, err := s.codec.Verify(exchangeToken, policy)
	if err != nil {
		return "", auth.ErrInvalidUserID
	}

	record, err := s.identities.GetByID(ctx, claims.RecordID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", auth.ErrInvalidUserID
		}
		return "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if !record.HasBackupTokenID(claims.TokenID) {
		return "", auth.ErrInvalidUserID
	}

	tokenID := newTokenID(uuid.NewString())
	token, err := s.codec.Issue(record.DisplayID, record.RecordID, tokenID, s.codec.Policies().App)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if err := s.identities.AppendTokenID(ctx, record.RecordID, tokenID); err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	s.logger.Info().Str("display_id", record.DisplayID).Msg("Exchange token redeemed")
	return token, nil
}

// Authenticate verifies a bearer token under the app policy and checks its
// token id against the identity's access allow-list. Returns the identity
// record and the verified claims. Used here and by the server middleware.
func (s *Service) Authenticate(ctx context.Context, appToken string) (*models.IdentityRecord, *auth.Claims, error) {
	claims, err := s.codec.Verify(appToken, s.codec.Policies().App)
	if err != nil {
		return nil, nil, auth.ErrInvalidUserID
	}

	record, err := s.identities.GetByID(ctx, claims.RecordID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, nil, auth.ErrInvalidUserID
		}
		return nil, nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if !record.HasTokenID(claims.TokenID) {
		return nil, nil, auth.ErrInvalidUserID
	}
	return record, claims, nil
}

// createRecord inserts a fresh identity with a display id not already in use.
func (s *Service) createRecord(ctx context.Context) (*models.IdentityRecord, error) {
	for i := 0; i < displayIDAttempts; i++ {
		displayID := auth.NewDisplayID()
		_, err := s.identities.GetByDisplayID(ctx, displayID)
		if err == nil {
			continue // taken
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
		}

		record, err := s.identities.Create(ctx, &models.IdentityRecord{DisplayID: displayID})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
		}
		return record, nil
	}
	return nil, fmt.Errorf("%w: display id space exhausted", auth.ErrUnavailable)
}

// newTokenID derives a fresh token id the same way pairing secrets are
// built, then hashes it so the stored allow-list never contains material
// that doubles as a pairing secret.
func newTokenID(clientUUID string) string {
	secret := base64.StdEncoding.EncodeToString([]byte(uuid.NewString() + "-" + clientUUID))
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

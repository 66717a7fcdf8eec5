package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/custody-vault/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	cost   int
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service. cost <= 0 selects bcrypt.DefaultCost.
func NewService(repo Repository, cost int, logger *slog.Logger) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cost: cost, logger: logger, now: time.Now}
}

// SplitAPIKey separates "principal:secret". The principal may itself
// contain colons, so the split happens at the last one.
func SplitAPIKey(apiKey string) (principal, secret string, ok bool) {
	idx := strings.LastIndex(apiKey, ":")
	if idx <= 0 || idx == len(apiKey)-1 {
		return "", "", false
	}
	return apiKey[:idx], apiKey[idx+1:], true
}

// Authenticate validates an API key and returns the principal it names.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (string, error) {
	principal, secret, ok := SplitAPIKey(apiKey)
	if !ok {
		return "", shared.ErrInvalidCredentials
	}
	cred, err := s.repo.FindByPrincipal(ctx, principal)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("credential lookup failed", slog.String("principal", principal), slog.Any("error", err))
		}
		return "", shared.ErrInvalidCredentials
	}
	if !cred.IsActive {
		return "", shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(secret)); err != nil {
		return "", shared.ErrInvalidCredentials
	}
	if err := s.repo.TouchLastUsed(ctx, principal, s.now()); err != nil {
		s.logger.Warn("touch last_used_at failed", slog.String("principal", principal), slog.Any("error", err))
	}
	return cred.Principal, nil
}

// Issue creates or rotates the API key for principal.
func (s *Service) Issue(ctx context.Context, principal string) (IssuedKey, error) {
	if strings.TrimSpace(principal) == "" {
		return IssuedKey{}, errors.New("auth: principal required")
	}
	secret := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	hash, err := s.HashSecret(secret)
	if err != nil {
		return IssuedKey{}, err
	}
	if err := s.repo.SaveCredential(ctx, principal, hash); err != nil {
		return IssuedKey{}, fmt.Errorf("auth: save credential: %w", err)
	}
	return IssuedKey{Principal: principal, APIKey: principal + ":" + secret}, nil
}

// Revoke deactivates the principal's key.
func (s *Service) Revoke(ctx context.Context, principal string) error {
	return s.repo.Deactivate(ctx, principal)
}

// HashSecret hashes secret with the configured bcrypt cost.
func (s *Service) HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hash), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/steam-achievements/internal/domain"
	"github.com/steam-achievements/internal/token"
)

// Minter submits a mint transaction and returns its hash. The contract rejects
// a duplicate (owner, tokenId) pair; that rejection is the on-chain
// idempotency guarantee.
type Minter interface {
	Mint(ctx context.Context, owner, tokenID string, appID uint32, achievementID string) (string, error)
}

// Confirmer reports whether a submitted transaction has landed
type Confirmer interface {
	TransactionConfirmed(ctx context.Context, txHash string) (bool, error)
}

// MintStore persists local mint records
type MintStore interface {
	HasMint(ctx context.Context, owner, tokenID string) (bool, error)
	RecordMintSubmission(ctx context.Context, owner, tokenID string, appID uint32, achievementID, txHash string) error
}

// AchievementReader verifies unlock state before a mint is allowed
type AchievementReader interface {
	GameAchievements(ctx context.Context, steamID string, appID uint32) (*domain.GameAchievements, error)
}

// MintService runs the mint pipeline as an explicit sequence of named stages:
// derive id, submit transaction, await confirmation, record locally. The
// returned result names the stage that failed.
type MintService struct {
	achievements   AchievementReader
	minter         Minter
	confirmer      Confirmer
	store          MintStore
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
}

// NewMintService creates a new mint pipeline service
func NewMintService(
	achievements AchievementReader,
	minter Minter,
	confirmer Confirmer,
	store MintStore,
	confirmTimeout time.Duration,
	logger *slog.Logger,
) *MintService {
	return &MintService{
		achievements:   achievements,
		minter:         minter,
		confirmer:      confirmer,
		store:          store,
		confirmTimeout: confirmTimeout,
		pollInterval:   5 * time.Second,
		logger:         logger,
	}
}

// Mint validates that the requesting identity actually unlocked the
// achievement, then runs the pipeline. The result always reports how far it
// got; err carries the failing stage's cause for status mapping.
func (s *MintService) Mint(ctx context.Context, req domain.MintRequest) (*domain.MintResult, error) {
	if req.SteamID == "" || req.AppID == 0 || req.AchievementID == "" || req.OwnerAddress == "" {
		return &domain.MintResult{Stage: domain.MintStageDerive, Error: domain.ErrInvalidRequest.Error()},
			domain.ErrInvalidRequest
	}

	view, err := s.achievements.GameAchievements(ctx, req.SteamID, req.AppID)
	if err != nil {
		return &domain.MintResult{Stage: domain.MintStageDerive, Error: err.Error()}, err
	}
	if !isUnlocked(view, req.AchievementID) {
		err := fmt.Errorf("%w: %s", domain.ErrAchievementLocked, req.AchievementID)
		return &domain.MintResult{Stage: domain.MintStageDerive, Error: err.Error()}, err
	}

	// Stage: derive. Pure and deterministic, so a remint derives the same id
	// and is caught here instead of being rejected on-chain.
	tokenID := token.DeriveHex(req.AppID, req.AchievementID)

	minted, err := s.store.HasMint(ctx, req.OwnerAddress, tokenID)
	if err != nil {
		s.logger.Warn("remint check unavailable, deferring to contract", "error", err)
	} else if minted {
		return &domain.MintResult{
			Stage:         domain.MintStageDone,
			TokenID:       tokenID,
			AlreadyMinted: true,
		}, nil
	}

	// Stage: submit
	txHash, err := s.minter.Mint(ctx, req.OwnerAddress, tokenID, req.AppID, req.AchievementID)
	if err != nil {
		return &domain.MintResult{Stage: domain.MintStageSubmit, TokenID: tokenID, Error: err.Error()}, err
	}

	// Stage: confirm
	if err := s.awaitConfirmation(ctx, txHash); err != nil {
		return &domain.MintResult{Stage: domain.MintStageConfirm, TokenID: tokenID, TxHash: txHash, Error: err.Error()}, err
	}

	// Stage: record. The watcher will reconcile the same mint from the event
	// log; the record store dedupes, so a failure here loses nothing durable.
	if err := s.store.RecordMintSubmission(ctx, req.OwnerAddress, tokenID, req.AppID, req.AchievementID, txHash); err != nil {
		s.logger.Warn("failed to record mint locally", "tx_hash", txHash, "error", err)
		return &domain.MintResult{Stage: domain.MintStageRecord, TokenID: tokenID, TxHash: txHash, Error: err.Error()}, err
	}

	return &domain.MintResult{Stage: domain.MintStageDone, TokenID: tokenID, TxHash: txHash}, nil
}

// awaitConfirmation polls for a receipt until the transaction lands or the
// confirmation budget runs out
func (s *MintService) awaitConfirmation(ctx context.Context, txHash string) error {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		confirmed, err := s.confirmer.TransactionConfirmed(ctx, txHash)
		if err != nil && !errors.Is(err, domain.ErrChainQueryFailure) {
			return err
		}
		if confirmed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation of %s timed out: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func isUnlocked(view *domain.GameAchievements, achievementID string) bool {
	for _, a := range view.Achievements {
		if a.Name == achievementID {
			return a.Achieved
		}
	}
	return false
}

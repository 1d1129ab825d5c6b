package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/steam-achievements/internal/config"
	"github.com/steam-achievements/internal/domain"
)

// RelayMinter submits mint transactions through an external relayer service
// that owns the signing wallet. The contract itself rejects a duplicate
// (owner, tokenId) pair, which is the idempotency guarantee this side relies on.
type RelayMinter struct {
	relayerURL string
	contract   string
	http       *http.Client
	logger     *slog.Logger
}

// NewRelayMinter creates a minter backed by the configured relayer
func NewRelayMinter(cfg *config.ChainConfig, logger *slog.Logger) *RelayMinter {
	return &RelayMinter{
		relayerURL: cfg.RelayerURL,
		contract:   cfg.ContractAddress,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type relayRequest struct {
	Contract      string `json:"contract"`
	To            string `json:"to"`
	TokenID       string `json:"token_id"`
	AppID         uint32 `json:"app_id"`
	AchievementID string `json:"achievement_id"`
}

type relayResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

// Mint asks the relayer to call mint(to, tokenId, appId, achievementId) and
// returns the submitted transaction hash.
func (m *RelayMinter) Mint(ctx context.Context, owner, tokenID string, appID uint32, achievementID string) (string, error) {
	payload, err := json.Marshal(relayRequest{
		Contract:      m.contract,
		To:            owner,
		TokenID:       tokenID,
		AppID:         appID,
		AchievementID: achievementID,
	})
	if err != nil {
		return "", fmt.Errorf("encoding relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.relayerURL+"/mint", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting mint: %w", err)
	}
	defer resp.Body.Close()

	var relayResp relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&relayResp); err != nil {
		return "", fmt.Errorf("decoding relay response: %w", err)
	}

	// 409 is the relayer reporting the contract's duplicate-mint rejection
	if resp.StatusCode == http.StatusConflict {
		return "", fmt.Errorf("%w: %s", domain.ErrMintRejected, relayResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relayer returned %d: %s", resp.StatusCode, relayResp.Error)
	}

	return relayResp.TxHash, nil
}

package domain

import "time"

// MintStage identifies the stage of the mint pipeline that produced a result.
type MintStage string

const (
	MintStageDerive  MintStage = "derive"
	MintStageSubmit  MintStage = "submit"
	MintStageConfirm MintStage = "confirm"
	MintStageRecord  MintStage = "record"
	MintStageDone    MintStage = "done"
)

// MintRequest asks for an on-chain token representing an unlocked achievement.
type MintRequest struct {
	SteamID       string `json:"steam_id"`
	AppID         uint32 `json:"app_id"`
	AchievementID string `json:"achievement_id"`
	OwnerAddress  string `json:"owner_address"`
}

// MintResult reports how far the mint pipeline got. Stage is the stage that
// failed, or MintStageDone on success.
type MintResult struct {
	Stage         MintStage `json:"stage"`
	TokenID       string    `json:"token_id,omitempty"`
	TxHash        string    `json:"tx_hash,omitempty"`
	AlreadyMinted bool      `json:"already_minted,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// MintEvent is one decoded Mint log from the contract.
type MintEvent struct {
	OwnerAddress  string `json:"owner_address"`
	TokenID       string `json:"token_id"`
	AppID         uint32 `json:"app_id"`
	AchievementID string `json:"achievement_id"`
	BlockNumber   uint64 `json:"block_number"`
	TxHash        string `json:"tx_hash"`
	LogIndex      uint32 `json:"log_index"`
}

// MintRecord is a mint persisted off-chain. Unique per (tx_hash, log_index);
// on-chain the contract enforces uniqueness per (owner, token id). Pending
// marks a locally submitted mint the watcher has not yet reconciled against
// the event log; block number and log index are placeholders until then.
type MintRecord struct {
	OwnerAddress  string    `json:"owner_address"`
	TokenID       string    `json:"token_id"`
	AppID         uint32    `json:"app_id"`
	AchievementID string    `json:"achievement_id"`
	BlockNumber   uint64    `json:"block_number"`
	TxHash        string    `json:"tx_hash"`
	LogIndex      uint32    `json:"log_index"`
	Pending       bool      `json:"pending,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

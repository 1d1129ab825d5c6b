package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/steam-achievements/internal/config"
	"github.com/steam-achievements/internal/domain"
)

// MintEventSig is the topic-0 signature of the contract's
// Mint(address indexed owner, uint256 indexed tokenId, uint32 appId, string achievementId)
// event.
const MintEventSig = "0x3e2abbad3c4565781ee97d1ec9be455ad55ae47f25b1b8a263feaa0c30da1b03"

// Client is a JSON-RPC client for the chain node. It covers exactly the three
// read operations the system needs: head height, mint logs in a bounded block
// window, and a transaction receipt for confirmation.
type Client struct {
	rpcURL   string
	contract string
	http     *http.Client
	logger   *slog.Logger
	reqID    atomic.Uint64
}

// NewClient creates a chain RPC client
func NewClient(cfg *config.ChainConfig, logger *slog.Logger) *Client {
	return &Client{
		rpcURL:   cfg.RPCURL,
		contract: strings.ToLower(cfg.ContractAddress),
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

type rawReceipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

// BlockNumber returns the current chain head height
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	n, err := parseHexUint(result)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing head height %q: %v", domain.ErrChainQueryFailure, result, err)
	}
	return n, nil
}

// MintEvents fetches and decodes Mint logs emitted by the configured contract
// in [fromBlock, toBlock]. Removed (reorged-out) logs are skipped.
func (c *Client) MintEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.MintEvent, error) {
	filter := map[string]interface{}{
		"address":   c.contract,
		"topics":    []string{MintEventSig},
		"fromBlock": fmt.Sprintf("0x%x", fromBlock),
		"toBlock":   fmt.Sprintf("0x%x", toBlock),
	}

	var logs []rawLog
	if err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &logs); err != nil {
		return nil, err
	}

	events := make([]domain.MintEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := decodeMintLog(lg)
		if err != nil {
			// An undecodable log from our own contract is contract drift;
			// make the cycle fail so the window is retried, not skipped.
			return nil, fmt.Errorf("%w: tx %s log %s: %v", domain.ErrChainQueryFailure, lg.TxHash, lg.LogIndex, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// TransactionConfirmed reports whether the transaction has a successful
// receipt. A nil receipt means the transaction is still pending.
func (c *Client) TransactionConfirmed(ctx context.Context, txHash string) (bool, error) {
	var receipt *rawReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &receipt); err != nil {
		return false, err
	}
	if receipt == nil {
		return false, nil
	}
	if receipt.Status != "0x1" {
		return false, fmt.Errorf("%w: transaction %s reverted", domain.ErrMintRejected, txHash)
	}
	return true, nil
}

// call performs one JSON-RPC request
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.reqID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", domain.ErrChainQueryFailure, method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: building %s: %v", domain.ErrChainQueryFailure, method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrChainQueryFailure, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", domain.ErrChainQueryFailure, method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", domain.ErrChainQueryFailure, method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s: rpc error %d: %s", domain.ErrChainQueryFailure, method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%w: decoding %s result: %v", domain.ErrChainQueryFailure, method, err)
	}
	return nil
}

// decodeMintLog decodes one Mint log. Topics carry the indexed owner and
// tokenId; the data section is ABI-encoded (uint32 appId, string achievementId).
func decodeMintLog(lg rawLog) (domain.MintEvent, error) {
	if len(lg.Topics) < 3 {
		return domain.MintEvent{}, fmt.Errorf("expected 3 topics, got %d", len(lg.Topics))
	}

	owner, err := topicAddress(lg.Topics[1])
	if err != nil {
		return domain.MintEvent{}, fmt.Errorf("owner topic: %w", err)
	}

	tokenID, err := topicUint256(lg.Topics[2])
	if err != nil {
		return domain.MintEvent{}, fmt.Errorf("tokenId topic: %w", err)
	}

	appID, achievementID, err := decodeMintData(lg.Data)
	if err != nil {
		return domain.MintEvent{}, fmt.Errorf("data: %w", err)
	}

	blockNumber, err := parseHexUint(lg.BlockNumber)
	if err != nil {
		return domain.MintEvent{}, fmt.Errorf("blockNumber: %w", err)
	}

	logIndex, err := parseHexUint(lg.LogIndex)
	if err != nil {
		return domain.MintEvent{}, fmt.Errorf("logIndex: %w", err)
	}

	return domain.MintEvent{
		OwnerAddress:  owner,
		TokenID:       fmt.Sprintf("0x%064x", tokenID),
		AppID:         appID,
		AchievementID: achievementID,
		BlockNumber:   blockNumber,
		TxHash:        lg.TxHash,
		LogIndex:      uint32(logIndex),
	}, nil
}

// decodeMintData unpacks the non-indexed (uint32, string) tail of a Mint log
func decodeMintData(data string) (uint32, string, error) {
	raw, err := hexBytes(data)
	if err != nil {
		return 0, "", err
	}
	if len(raw) < 96 {
		return 0, "", fmt.Errorf("data too short: %d bytes", len(raw))
	}

	appID := new(big.Int).SetBytes(raw[0:32])
	if !appID.IsUint64() || appID.Uint64() > 1<<32-1 {
		return 0, "", fmt.Errorf("appId out of range")
	}

	// Bounds checks are in subtraction form so hostile 2^64-scale offsets
	// cannot wrap past them. len(raw) >= 96 is already established.
	offset := new(big.Int).SetBytes(raw[32:64])
	if !offset.IsUint64() || offset.Uint64() > uint64(len(raw))-32 {
		return 0, "", fmt.Errorf("string offset out of range")
	}
	off := offset.Uint64()

	strLen := new(big.Int).SetBytes(raw[off : off+32])
	if !strLen.IsUint64() || strLen.Uint64() > uint64(len(raw))-32-off {
		return 0, "", fmt.Errorf("string length out of range")
	}

	name := string(raw[off+32 : off+32+strLen.Uint64()])
	return uint32(appID.Uint64()), name, nil
}

func topicAddress(topic string) (string, error) {
	raw, err := hexBytes(topic)
	if err != nil {
		return "", err
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	return fmt.Sprintf("0x%040x", new(big.Int).SetBytes(raw[12:])), nil
}

func topicUint256(topic string) (*big.Int, error) {
	raw, err := hexBytes(topic)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	return new(big.Int).SetBytes(raw), nil
}

func hexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

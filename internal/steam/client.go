package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/steam-achievements/internal/config"
	"github.com/steam-achievements/internal/domain"
)

// Client talks to the Steam Web API. Each of the three read operations has its
// own failure policy: player achievements distinguish expected profile errors
// from transport failure, the schema is required and strict, and global
// percentages degrade to empty.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Steam Web API client
func NewClient(cfg *config.SteamConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type playerAchievementsResponse struct {
	PlayerStats struct {
		Success      bool                       `json:"success"`
		Error        string                     `json:"error"`
		GameName     string                     `json:"gameName"`
		Achievements []domain.PlayerAchievement `json:"achievements"`
	} `json:"playerstats"`
}

type schemaResponse struct {
	Game struct {
		GameName           string `json:"gameName"`
		AvailableGameStats *struct {
			Achievements []domain.AchievementDefinition `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

type globalPercentagesResponse struct {
	AchievementPercentages struct {
		Achievements []domain.GlobalPercentage `json:"achievements"`
	} `json:"achievementpercentages"`
}

// PlayerAchievements fetches a player's unlock state for one game.
// A Steam-reported failure (private profile, unowned game, no stats) returns
// ErrProfileUnreadable; transport or HTTP errors return ErrUpstreamUnavailable.
func (c *Client) PlayerAchievements(ctx context.Context, steamID string, appID uint32) ([]domain.PlayerAchievement, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamid", steamID)
	q.Set("appid", fmt.Sprintf("%d", appID))

	body, err := c.get(ctx, "/ISteamUserStats/GetPlayerAchievements/v0001/", q)
	if err != nil {
		return nil, err
	}

	var resp playerAchievementsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding player achievements: %v", domain.ErrMalformedUpstreamResponse, err)
	}

	if !resp.PlayerStats.Success {
		// Steam names the reason (e.g. "Profile is not public"); this is an
		// expected condition, not a fault.
		return nil, fmt.Errorf("%w: %s", domain.ErrProfileUnreadable, resp.PlayerStats.Error)
	}

	return resp.PlayerStats.Achievements, nil
}

// GameSchema fetches the full achievement universe for a game. A 200 response
// without the achievement list is ErrMalformedUpstreamResponse: nothing can be
// shown without a schema.
func (c *Client) GameSchema(ctx context.Context, appID uint32) (*domain.GameSchema, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("appid", fmt.Sprintf("%d", appID))

	body, err := c.get(ctx, "/ISteamUserStats/GetSchemaForGame/v2/", q)
	if err != nil {
		return nil, err
	}

	var resp schemaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding schema: %v", domain.ErrMalformedUpstreamResponse, err)
	}

	if resp.Game.AvailableGameStats == nil || resp.Game.AvailableGameStats.Achievements == nil {
		return nil, fmt.Errorf("%w: schema for app %d has no achievement list", domain.ErrMalformedUpstreamResponse, appID)
	}

	return &domain.GameSchema{
		GameName:     resp.Game.GameName,
		Achievements: resp.Game.AvailableGameStats.Achievements,
	}, nil
}

// GlobalPercentages fetches global unlock rarity for a game. Rarity is
// supplementary: any failure degrades to an empty list, never an error.
func (c *Client) GlobalPercentages(ctx context.Context, appID uint32) []domain.GlobalPercentage {
	q := url.Values{}
	q.Set("gameid", fmt.Sprintf("%d", appID))

	body, err := c.get(ctx, "/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v0002/", q)
	if err != nil {
		c.logger.Warn("global percentages unavailable, degrading to empty", "app_id", appID, "error", err)
		return nil
	}

	var resp globalPercentagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("global percentages malformed, degrading to empty", "app_id", appID, "error", err)
		return nil
	}

	return resp.AchievementPercentages.Achievements
}

// get performs one Steam Web API call and returns the raw body
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", domain.ErrUpstreamUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: steam returned %d for %s", domain.ErrUpstreamUnavailable, resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return body, nil
}

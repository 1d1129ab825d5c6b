package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/steam-achievements/internal/cache"
	"github.com/steam-achievements/internal/domain"
)

// Gateway fetches the three upstream datasets from the Steam Web API
type Gateway interface {
	PlayerAchievements(ctx context.Context, steamID string, appID uint32) ([]domain.PlayerAchievement, error)
	GameSchema(ctx context.Context, appID uint32) (*domain.GameSchema, error)
	GlobalPercentages(ctx context.Context, appID uint32) []domain.GlobalPercentage
}

// Cache is the read-through payload cache in front of the gateway. Misses and
// store failures look identical to the service; it never sees a cache error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// AchievementService reconciles player state, game schema and global rarity
// into one sorted per-game view
type AchievementService struct {
	gateway Gateway
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewAchievementService creates a new achievement aggregation service
func NewAchievementService(gateway Gateway, cache Cache, ttl time.Duration, logger *slog.Logger) *AchievementService {
	return &AchievementService{
		gateway: gateway,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
	}
}

// GameAchievements returns the merged achievement view for (steamID, appID),
// sorted with unlocked achievements first and rarer achievements before common
// ones within each group.
//
// The schema determines the achievement universe; player state and rarity are
// joined onto it. A missing rarity entry defaults to 100 (common), so a broken
// rarity upstream is indistinguishable from a genuinely common achievement;
// inherited behavior kept on purpose.
func (s *AchievementService) GameAchievements(ctx context.Context, steamID string, appID uint32) (*domain.GameAchievements, error) {
	playerState, err := s.resolvePlayerState(ctx, steamID, appID)
	if err != nil {
		return nil, err
	}

	schema, err := s.resolveSchema(ctx, appID)
	if err != nil {
		return nil, err
	}

	// Rarity never fails the request
	percentages := s.resolveGlobalPercentages(ctx, appID)

	unlocked := make(map[string]domain.PlayerAchievement, len(playerState))
	for _, pa := range playerState {
		unlocked[pa.APIName] = pa
	}

	percentByName := make(map[string]float64, len(percentages))
	for _, gp := range percentages {
		percentByName[gp.Name] = gp.Percent
	}

	combined := make([]domain.CombinedAchievement, 0, len(schema.Achievements))
	for _, def := range schema.Achievements {
		ca := domain.CombinedAchievement{
			Name:        def.Name,
			DisplayName: def.DisplayName,
			Description: def.Description,
			Hidden:      def.Hidden,
			Icon:        def.Icon,
			IconGray:    def.IconGray,
			Percent:     100,
		}
		if pa, ok := unlocked[def.Name]; ok {
			ca.Achieved = pa.Achieved == 1
			ca.UnlockTime = pa.UnlockTime
		}
		if pct, ok := percentByName[def.Name]; ok {
			ca.Percent = pct
		}
		combined = append(combined, ca)
	}

	// Unlocked before locked; within each group ascending by percent so the
	// rarest surface first. Stable keeps schema order for ties.
	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Achieved != combined[j].Achieved {
			return combined[i].Achieved
		}
		return combined[i].Percent < combined[j].Percent
	})

	return &domain.GameAchievements{
		GameName:     schema.GameName,
		SteamID:      steamID,
		Achievements: combined,
	}, nil
}

// resolvePlayerState returns the player's unlock state, cache first
func (s *AchievementService) resolvePlayerState(ctx context.Context, steamID string, appID uint32) ([]domain.PlayerAchievement, error) {
	key := cache.PlayerAchievementsKey(steamID, appID)

	if payload, ok := s.cache.Get(ctx, key); ok {
		var state []domain.PlayerAchievement
		if err := json.Unmarshal([]byte(payload), &state); err == nil {
			return state, nil
		}
		s.logger.Warn("discarding undecodable cached player state", "key", key)
	}

	state, err := s.gateway.PlayerAchievements(ctx, steamID, appID)
	if err != nil {
		return nil, err
	}

	s.writeThrough(ctx, key, state)
	return state, nil
}

// resolveSchema returns the game's achievement schema, cache first
func (s *AchievementService) resolveSchema(ctx context.Context, appID uint32) (*domain.GameSchema, error) {
	key := cache.SchemaKey(appID)

	if payload, ok := s.cache.Get(ctx, key); ok {
		var schema domain.GameSchema
		if err := json.Unmarshal([]byte(payload), &schema); err == nil {
			return &schema, nil
		}
		s.logger.Warn("discarding undecodable cached schema", "key", key)
	}

	schema, err := s.gateway.GameSchema(ctx, appID)
	if err != nil {
		return nil, err
	}

	s.writeThrough(ctx, key, schema)
	return schema, nil
}

// resolveGlobalPercentages returns rarity data, cache first. A degraded empty
// result is not written back, so a fresh fetch is attempted next request.
func (s *AchievementService) resolveGlobalPercentages(ctx context.Context, appID uint32) []domain.GlobalPercentage {
	key := cache.GlobalPercentagesKey(appID)

	if payload, ok := s.cache.Get(ctx, key); ok {
		var percentages []domain.GlobalPercentage
		if err := json.Unmarshal([]byte(payload), &percentages); err == nil {
			return percentages
		}
		s.logger.Warn("discarding undecodable cached percentages", "key", key)
	}

	percentages := s.gateway.GlobalPercentages(ctx, appID)
	if len(percentages) > 0 {
		s.writeThrough(ctx, key, percentages)
	}
	return percentages
}

// writeThrough stores a fetched payload under key, best effort
func (s *AchievementService) writeThrough(ctx context.Context, key string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode payload for cache", "key", key, "error", err)
		return
	}
	s.cache.Set(ctx, key, string(data), s.ttl)
}

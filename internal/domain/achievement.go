package domain

// AchievementDefinition is one achievement as published by a game's schema.
// Name is the stable machine key, unique within a game.
type AchievementDefinition struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Hidden      int    `json:"hidden"`
	Icon        string `json:"icon"`
	IconGray    string `json:"icongray"`
}

// GameSchema is the full achievement universe for one game.
type GameSchema struct {
	GameName     string                  `json:"gameName"`
	Achievements []AchievementDefinition `json:"achievements"`
}

// PlayerAchievement is a player's unlock state for one achievement.
// Achieved is 0/1 as reported by Steam; UnlockTime is a Unix timestamp,
// 0 when never unlocked.
type PlayerAchievement struct {
	APIName    string `json:"apiname"`
	Achieved   int    `json:"achieved"`
	UnlockTime int64  `json:"unlocktime"`
}

// GlobalPercentage is the fraction of all players who unlocked an achievement.
type GlobalPercentage struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// CombinedAchievement is the merged, user-facing view. Derived per request,
// never cached or persisted.
type CombinedAchievement struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	Description string  `json:"description,omitempty"`
	Hidden      int     `json:"hidden"`
	Icon        string  `json:"icon"`
	IconGray    string  `json:"icongray"`
	Achieved    bool    `json:"achieved"`
	UnlockTime  int64   `json:"unlocktime"`
	Percent     float64 `json:"percent"`
}

// GameAchievements is the response for an achievements query.
type GameAchievements struct {
	GameName     string                `json:"gameName"`
	SteamID      string                `json:"steamId"`
	Achievements []CombinedAchievement `json:"achievements"`
}

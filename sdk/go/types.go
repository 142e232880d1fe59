package sdk

import (
	"encoding/json"

	"fwdefense/core"
)

// EnrollResult is the enrollment response: a session token plus the record.
type EnrollResult struct {
	Token  string      `json:"token"`
	Player core.Player `json:"player"`
}

// MatchResult is the response to a completed match.
type MatchResult struct {
	TotalScore     int64 `json:"totalScore"`
	FirewallHealth int64 `json:"firewallHealth"`
}

// LeaderboardView mirrors the public leaderboard read model.
type LeaderboardView struct {
	Leaderboard          []core.RankedPlayer `json:"leaderboard"`
	LastFlush            *int64              `json:"lastFlush"`
	FlushIntervalMinutes int                 `json:"flushIntervalMinutes"`
}

// FirewallStatus is the global health pair.
type FirewallStatus struct {
	Health    int64 `json:"health"`
	MaxHealth int64 `json:"maxHealth"`
}

// HealthStatus reports service liveness.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Update is one broadcast frame from the websocket stream. Raw holds the
// full payload for type-specific decoding.
type Update struct {
	Type core.MessageType
	Raw  json.RawMessage
}

// Leaderboard decodes the frame as a leaderboard update.
func (u Update) Leaderboard() (core.LeaderboardUpdate, error) {
	var msg core.LeaderboardUpdate
	err := json.Unmarshal(u.Raw, &msg)
	return msg, err
}

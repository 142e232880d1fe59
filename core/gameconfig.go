package core

import (
	"errors"
	"fmt"
	"strings"
)

// DifficultyConfig tunes one difficulty level of the browser game.
type DifficultyConfig struct {
	HoleCount               int     `json:"holeCount"`
	SpawnRate               int     `json:"spawnRate"`
	MaxSpeed                float64 `json:"maxSpeed"`
	Penalty                 int     `json:"penalty"`
	DefenseBonus            int     `json:"defenseBonus"`
	GameTimeSeconds         int     `json:"gameTimeSeconds"`
	AdblockDepletionRate    int     `json:"adblockDepletionRate"`
	AdblockRegenerationRate int     `json:"adblockRegenerationRate"`
	AdblockTimeoutAfterUse  int     `json:"adblockTimeoutAfterUse"`
	HolesWander             bool    `json:"holesWander"`
	TrapGrantingEnemyChance int     `json:"trapGrantingEnemyChance"`
}

// GameConfig is the remote configuration served to game clients and edited
// from the admin panel. Persisted as a single JSON blob.
type GameConfig struct {
	Validation        ProfileLimits    `json:"validation"`
	TrapTimeout       int              `json:"trapTimeout"`
	TrapDurability    int              `json:"trapDurability"`
	TrapShrinkPercent int              `json:"trapShrinkPercent"`
	Easy              DifficultyConfig `json:"easy"`
	Medium            DifficultyConfig `json:"medium"`
	Hard              DifficultyConfig `json:"hard"`
}

// DefaultGameConfig mirrors the shipped defaults.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		Validation:        DefaultProfileLimits(),
		TrapTimeout:       5000,
		TrapDurability:    1,
		TrapShrinkPercent: 0,
		Easy: DifficultyConfig{
			HoleCount: 1, SpawnRate: 1000, MaxSpeed: 1.5, Penalty: 5,
			DefenseBonus: 5, GameTimeSeconds: 60,
			AdblockDepletionRate: 100, AdblockRegenerationRate: 50,
			AdblockTimeoutAfterUse: 2, HolesWander: false,
			TrapGrantingEnemyChance: 10,
		},
		Medium: DifficultyConfig{
			HoleCount: 1, SpawnRate: 750, MaxSpeed: 2, Penalty: 10,
			DefenseBonus: 5, GameTimeSeconds: 60,
			AdblockDepletionRate: 150, AdblockRegenerationRate: 40,
			AdblockTimeoutAfterUse: 2, HolesWander: false,
			TrapGrantingEnemyChance: 15,
		},
		Hard: DifficultyConfig{
			HoleCount: 2, SpawnRate: 500, MaxSpeed: 2.5, Penalty: 15,
			DefenseBonus: 5, GameTimeSeconds: 60,
			AdblockDepletionRate: 200, AdblockRegenerationRate: 30,
			AdblockTimeoutAfterUse: 3, HolesWander: true,
			TrapGrantingEnemyChance: 20,
		},
	}
}

// Validate checks every difficulty section.
func (c GameConfig) Validate() error {
	var errs []string
	for name, level := range map[string]DifficultyConfig{"easy": c.Easy, "medium": c.Medium, "hard": c.Hard} {
		if err := level.validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (d DifficultyConfig) validate() error {
	var errs []string
	if d.HoleCount < 0 {
		errs = append(errs, "holeCount must be non-negative")
	}
	if d.SpawnRate < 0 {
		errs = append(errs, "spawnRate must be non-negative")
	}
	if d.MaxSpeed < 0 {
		errs = append(errs, "maxSpeed must be non-negative")
	}
	if d.Penalty < 0 {
		errs = append(errs, "penalty must be non-negative")
	}
	if d.DefenseBonus < 0 {
		errs = append(errs, "defenseBonus must be non-negative")
	}
	if d.GameTimeSeconds < 1 {
		errs = append(errs, "gameTimeSeconds must be at least 1")
	}
	if d.AdblockDepletionRate < 0 {
		errs = append(errs, "adblockDepletionRate must be non-negative")
	}
	if d.AdblockRegenerationRate < 0 {
		errs = append(errs, "adblockRegenerationRate must be non-negative")
	}
	if d.AdblockTimeoutAfterUse < 0 {
		errs = append(errs, "adblockTimeoutAfterUse must be non-negative")
	}
	if d.TrapGrantingEnemyChance < 0 || d.TrapGrantingEnemyChance > 100 {
		errs = append(errs, "trapGrantingEnemyChance must be between 0 and 100")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

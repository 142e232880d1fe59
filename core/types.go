package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PlayerID is the opaque, client-generated identifier of an enrolled player.
type PlayerID string

// Player is the durable per-player record: display metadata plus the
// cumulative score for the current flush epoch. TotalScore is owned by the
// score ledger; nothing else mutates it.
type Player struct {
	ID          PlayerID  `json:"uuid"`
	ProductName string    `json:"productName"`
	Tagline     string    `json:"tagline"`
	Color       string    `json:"color"`
	TotalScore  int64     `json:"totalScore"`
	LastLogin   time.Time `json:"lastLogin"`
}

// Entry is a single (id, score) pair from the ranking structure.
type Entry struct {
	ID    PlayerID `json:"uuid"`
	Score int64    `json:"score"`
}

// FlushState is the pair of scalars driving the lazy flush scheduler.
// LastFlush is nil when the leaderboard has never been flushed.
type FlushState struct {
	LastFlush       *time.Time
	IntervalMinutes int
}

// DefaultFlushIntervalMinutes applies when no interval has been configured.
const DefaultFlushIntervalMinutes = 60

// Due reports whether the current epoch has expired at the given instant.
// A never-flushed leaderboard is always due.
func (s FlushState) Due(now time.Time) bool {
	if s.LastFlush == nil {
		return true
	}
	return now.Sub(*s.LastFlush) >= time.Duration(s.IntervalMinutes)*time.Minute
}

// LastFlushMillis returns the last flush timestamp as epoch millis for the
// wire format, or nil when never flushed.
func (s FlushState) LastFlushMillis() *int64 {
	if s.LastFlush == nil {
		return nil
	}
	ms := s.LastFlush.UnixMilli()
	return &ms
}

// DefaultColor is used when a player has not picked one.
const DefaultColor = "#FFFFFF"

// DefaultTagline derives a deterministic placeholder from the player id.
func DefaultTagline(id PlayerID) string {
	s := string(id)
	if len(s) > 4 {
		s = s[:4]
	}
	return "Defender-" + s
}

// DefaultProductName derives the initial corporation name from the id,
// using the last dash-separated segment (or leading characters) as a
// hex number.
func DefaultProductName(id PlayerID) string {
	s := string(id)
	seg := s
	if i := strings.LastIndex(s, "-"); i >= 0 && i+1 < len(s) {
		seg = s[i+1:]
	}
	if len(seg) > 4 {
		seg = seg[:4]
	}
	n, err := strconv.ParseUint(seg, 16, 32)
	if err != nil || n == 0 {
		n = 1
	}
	return fmt.Sprintf("Generic Co. #%d", n)
}

// NormalizePlayerID trims the id and rejects empty values.
func NormalizePlayerID(id PlayerID) (PlayerID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty player id")
	}
	return PlayerID(s), nil
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidateColor accepts hex colors of the form #RRGGBB.
func ValidateColor(c string) error {
	if !colorPattern.MatchString(c) {
		return errors.New("invalid color format, must be hex like #FF0000")
	}
	return nil
}

// ProfileLimits bounds the admin-configurable profile fields.
type ProfileLimits struct {
	ProductNameMinLength int `json:"corporationNameMinLength"`
	ProductNameMaxLength int `json:"corporationNameMaxLength"`
	TaglineMinLength     int `json:"taglineMinLength"`
	TaglineMaxLength     int `json:"taglineMaxLength"`
}

// DefaultProfileLimits mirrors the deployed defaults.
func DefaultProfileLimits() ProfileLimits {
	return ProfileLimits{
		ProductNameMinLength: 1,
		ProductNameMaxLength: 64,
		TaglineMinLength:     1,
		TaglineMaxLength:     128,
	}
}

// ValidateTagline checks length bounds after trimming.
func (l ProfileLimits) ValidateTagline(tagline string) error {
	n := len(strings.TrimSpace(tagline))
	if n < l.TaglineMinLength {
		return fmt.Errorf("tagline must be at least %d character(s)", l.TaglineMinLength)
	}
	if n > l.TaglineMaxLength {
		return fmt.Errorf("tagline must be at most %d characters", l.TaglineMaxLength)
	}
	return nil
}

// ValidateProductName checks length bounds after trimming. Empty names are
// allowed; the caller decides whether to clear the field.
func (l ProfileLimits) ValidateProductName(name string) error {
	if name == "" {
		return nil
	}
	n := len(strings.TrimSpace(name))
	if n < l.ProductNameMinLength {
		return fmt.Errorf("corporation name must be at least %d character(s)", l.ProductNameMinLength)
	}
	if n > l.ProductNameMaxLength {
		return fmt.Errorf("corporation name must be at most %d characters", l.ProductNameMaxLength)
	}
	return nil
}

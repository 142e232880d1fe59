package core

// MessageType discriminates broadcast payloads on the wire.
type MessageType string

const (
	MsgLeaderboardUpdate MessageType = "LEADERBOARD_UPDATE"
	MsgHealthUpdate      MessageType = "HEALTH_UPDATE"
	MsgMOTD              MessageType = "MOTD"
	MsgProfileUpdated    MessageType = "PROFILE_UPDATED"
	MsgPlayerDeleted     MessageType = "PLAYER_DELETED"
	MsgConnected         MessageType = "CONNECTED"
	MsgPong              MessageType = "pong"
)

// Message is any JSON-serializable broadcast payload carrying a type
// discriminator. Delivery is fire-and-forget; publishers never wait for
// acknowledgement.
type Message interface {
	MessageType() MessageType
}

// RankedPlayer is one leaderboard row enriched with display metadata.
type RankedPlayer struct {
	ID          PlayerID `json:"uuid,omitempty"`
	ProductName string   `json:"productName"`
	Tagline     string   `json:"tagline"`
	Color       string   `json:"color"`
	Score       int64    `json:"score"`
}

// LeaderboardUpdate is pushed whenever the visible top ranking changed.
// Flushed is set only when the update resulted from a flush, letting
// subscribers distinguish a reset from a reorder. Flush state rides along
// so clients can render the countdown without a separate request.
type LeaderboardUpdate struct {
	Type                 MessageType    `json:"type"`
	Leaderboard          []RankedPlayer `json:"leaderboard"`
	LastFlush            *int64         `json:"lastFlush"`
	FlushIntervalMinutes int            `json:"flushIntervalMinutes"`
	Flushed              bool           `json:"flushed,omitempty"`
}

func NewLeaderboardUpdate(rows []RankedPlayer, state FlushState, flushed bool) LeaderboardUpdate {
	if rows == nil {
		rows = []RankedPlayer{}
	}
	return LeaderboardUpdate{
		Type:                 MsgLeaderboardUpdate,
		Leaderboard:          rows,
		LastFlush:            state.LastFlushMillis(),
		FlushIntervalMinutes: state.IntervalMinutes,
		Flushed:              flushed,
	}
}

func (LeaderboardUpdate) MessageType() MessageType { return MsgLeaderboardUpdate }

// HealthUpdate carries the new global firewall health.
type HealthUpdate struct {
	Type   MessageType `json:"type"`
	Health int64       `json:"health"`
}

func NewHealthUpdate(health int64) HealthUpdate {
	return HealthUpdate{Type: MsgHealthUpdate, Health: health}
}

func (HealthUpdate) MessageType() MessageType { return MsgHealthUpdate }

// MOTDMessage carries an admin announcement.
type MOTDMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewMOTD(message string) MOTDMessage {
	return MOTDMessage{Type: MsgMOTD, Message: message}
}

func (MOTDMessage) MessageType() MessageType { return MsgMOTD }

// ProfileUpdated tells a player their profile was changed by an admin.
type ProfileUpdated struct {
	Type        MessageType `json:"type"`
	ID          PlayerID    `json:"uuid"`
	ProductName string      `json:"productName"`
	Tagline     string      `json:"tagline"`
}

func NewProfileUpdated(id PlayerID, productName, tagline string) ProfileUpdated {
	return ProfileUpdated{Type: MsgProfileUpdated, ID: id, ProductName: productName, Tagline: tagline}
}

func (ProfileUpdated) MessageType() MessageType { return MsgProfileUpdated }

// PlayerDeleted tells clients a player record was removed.
type PlayerDeleted struct {
	Type MessageType `json:"type"`
	ID   PlayerID    `json:"uuid"`
}

func NewPlayerDeleted(id PlayerID) PlayerDeleted {
	return PlayerDeleted{Type: MsgPlayerDeleted, ID: id}
}

func (PlayerDeleted) MessageType() MessageType { return MsgPlayerDeleted }

// Connected is the welcome frame sent to a fresh websocket subscriber.
type Connected struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewConnected() Connected {
	return Connected{Type: MsgConnected, Message: "Welcome to Firewall Defense"}
}

func (Connected) MessageType() MessageType { return MsgConnected }

// Pong answers a client ping on the websocket.
type Pong struct {
	Type MessageType `json:"type"`
}

func NewPong() Pong { return Pong{Type: MsgPong} }

func (Pong) MessageType() MessageType { return MsgPong }

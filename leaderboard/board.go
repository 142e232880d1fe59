package leaderboard

import "fwdefense/core"

// Board abstracts the in-process ranking structure: insert-or-update by
// player id, rank-ordered reads, and wholesale clearing on flush.
type Board interface {
	Upsert(player core.PlayerID, score int64)
	Remove(player core.PlayerID)
	TopN(n int) []core.Entry
	All() []core.Entry
	Get(player core.PlayerID) (core.Entry, bool)
	Clear()
	Len() int
}

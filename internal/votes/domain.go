package votes

import (
	"errors"
	"time"
)

var (
	// ErrVoteNotFound is returned when a vote id resolves to nothing.
	ErrVoteNotFound = errors.New("votes: not found")
	// ErrVoteClosed rejects a cast against a vote that already has a result.
	ErrVoteClosed = errors.New("votes: vote closed")
	// ErrAlreadyVoted rejects a second entry by the same member.
	ErrAlreadyVoted = errors.New("votes: already voted")
)

// Vote is a corporation ballot. Result is nil while the vote is open and
// set exactly once when the participation target is reached.
type Vote struct {
	ID            int64
	CorporationID int64
	Group         string
	Name          string
	Topic         string
	Participation int
	ConsensusRate int
	StartedAt     time.Time
	EndsAt        time.Time
	Result        *bool
}

// Open reports whether the vote still accepts entries.
func (v Vote) Open() bool {
	return v.Result == nil
}

// Entry is one member's answer. Append-only, at most one per (vote, member).
type Entry struct {
	VoteID      int64
	CharacterID int64
	Answer      bool
	CastAt      time.Time
}

// passed applies the consensus rule. The rate is clamped so a misconfigured
// vote cannot demand more than unanimity or less than nothing.
func passed(yes, participation, consensusRate int) bool {
	if consensusRate < 0 {
		consensusRate = 0
	}
	if consensusRate > 100 {
		consensusRate = 100
	}
	yesRatio := float64(yes) / float64(participation) * 100
	return yesRatio >= float64(consensusRate)
}

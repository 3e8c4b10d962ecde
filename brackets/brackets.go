// Package brackets holds the pure single-elimination bracket functions:
// seeding, round generation and winner advancement. It reads and returns
// the Participant/Match records it is given and keeps no state of its own.
package brackets

import (
	"errors"
	"math"
	"sort"

	"github.com/google/uuid"

	"game-match-server/models"
)

var (
	ErrNotEnoughParticipants = errors.New("at least 2 participants required")
	ErrRoundIncomplete       = errors.New("round has unfinished matches")
)

// Seed orders participants deterministically: explicit seed first (lower is
// better, zero means unseeded), then join order as the tiebreak. The sort
// is stable so equal entries keep their registration order.
func Seed(participants []models.Participant) []models.Participant {
	seeded := make([]models.Participant, len(participants))
	copy(seeded, participants)

	sort.SliceStable(seeded, func(i, j int) bool {
		si, sj := seeded[i].Seed, seeded[j].Seed
		if si != sj {
			if si == 0 {
				return false
			}
			if sj == 0 {
				return true
			}
			return si < sj
		}
		return seeded[i].JoinedAt.Before(seeded[j].JoinedAt)
	})
	return seeded
}

// BracketSize returns the next power of two at or above n.
func BracketSize(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(math.Ceil(math.Log2(float64(n))))
}

// Rounds returns the number of rounds a bracket of n participants plays.
func Rounds(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// Generate builds the complete match skeleton for a tournament: round 1 is
// seated by pairing adjacent seeds, later rounds are created with empty
// player slots to be filled by Advance.
//
// When the participant count is not a power of two, the seeded list is
// padded with empty slots at the tail, so the excess lowest-seeded
// participants end up paired against nobody: those matches are recorded as
// byes, pre-completed with the lone participant as winner, and no room is
// ever created for them.
func Generate(tournamentID string, seeded []models.Participant) ([]models.Match, error) {
	n := len(seeded)
	if n < 2 {
		return nil, ErrNotEnoughParticipants
	}

	size := BracketSize(n)
	rounds := Rounds(n)

	// Round-1 slot layout: the first (n - size/2) pairs take two seeds
	// each, every remaining pair takes a single seed and becomes a bye.
	// That hands the byes to the excess lowest-seeded participants and
	// never produces an empty-versus-empty pair.
	slots := make([]string, size)
	played := n - size/2
	idx := 0
	for pair := 0; pair < size/2; pair++ {
		slots[pair*2] = seeded[idx].ID
		idx++
		if pair < played {
			slots[pair*2+1] = seeded[idx].ID
			idx++
		}
	}

	var matches []models.Match
	for round := 1; round <= rounds; round++ {
		count := size >> uint(round)
		for num := 1; num <= count; num++ {
			m := models.Match{
				ID:           uuid.NewString(),
				TournamentID: tournamentID,
				Round:        round,
				MatchNumber:  num,
				Status:       models.MatchPending,
			}
			if round == 1 {
				p1 := slots[(num-1)*2]
				p2 := slots[(num-1)*2+1]
				m.Player1ID = p1
				m.Player2ID = p2
				if p2 == "" {
					m.IsBye = true
					m.WinnerID = p1
					m.Status = models.MatchCompleted
				}
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// RoundMatches filters matches of one round in bracket order.
func RoundMatches(all []models.Match, round int) []models.Match {
	var out []models.Match
	for _, m := range all {
		if m.Round == round {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchNumber < out[j].MatchNumber })
	return out
}

// RoundComplete reports whether every match of the round is terminal.
func RoundComplete(all []models.Match, round int) bool {
	ms := RoundMatches(all, round)
	if len(ms) == 0 {
		return false
	}
	for _, m := range ms {
		if !m.Terminal() {
			return false
		}
	}
	return true
}

// Advance fills the next round's player slots by pairing adjacent winners
// of the given round in bracket order. It returns the updated next-round
// matches, or nil with done=true exactly when the completed round was the
// final one. The caller persists the returned matches.
func Advance(all []models.Match, round int) (next []models.Match, done bool, err error) {
	if !RoundComplete(all, round) {
		return nil, false, ErrRoundIncomplete
	}

	current := RoundMatches(all, round)
	winners := make([]string, len(current))
	for i, m := range current {
		winners[i] = m.WinnerID
	}

	nextRound := RoundMatches(all, round+1)
	if len(nextRound) == 0 {
		// The final just completed.
		return nil, true, nil
	}

	for i := range nextRound {
		if 2*i < len(winners) {
			nextRound[i].Player1ID = winners[2*i]
		}
		if 2*i+1 < len(winners) {
			nextRound[i].Player2ID = winners[2*i+1]
		}
	}
	return nextRound, false, nil
}

// CurrentMatch returns the earliest non-terminal match of the lowest
// incomplete round, skipping byes: the match that should be played next.
// It is a pure query over the rows it is given, never a cached pointer.
func CurrentMatch(all []models.Match) *models.Match {
	ordered := ordering(all)
	for i := range ordered {
		if !ordered[i].Terminal() && !ordered[i].IsBye {
			return &ordered[i]
		}
	}
	return nil
}

// NextMatch returns the match after CurrentMatch in bracket order.
func NextMatch(all []models.Match) *models.Match {
	ordered := ordering(all)
	seenCurrent := false
	for i := range ordered {
		if ordered[i].Terminal() || ordered[i].IsBye {
			continue
		}
		if seenCurrent {
			return &ordered[i]
		}
		seenCurrent = true
	}
	return nil
}

func ordering(all []models.Match) []models.Match {
	out := make([]models.Match, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].MatchNumber < out[j].MatchNumber
	})
	return out
}

package models

import (
	"time"
)

// Match statuses
const (
	MatchPending   = "pending"
	MatchActive    = "active"
	MatchCompleted = "completed"
	MatchForfeit   = "forfeit"
)

// Match is one bracket slot. Matches for every round are created in bulk
// when the tournament starts; later rounds carry empty player slots until
// the prior round resolves. A match is mutated to a terminal status exactly
// once and never deleted.
type Match struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	TournamentID string     `json:"tournament_id" gorm:"not null;index"`
	Round        int        `json:"round" gorm:"not null"`
	MatchNumber  int        `json:"match_number" gorm:"not null"`
	Player1ID    string     `json:"player1_id,omitempty"`
	Player2ID    string     `json:"player2_id,omitempty"`
	WinnerID     string     `json:"winner_id,omitempty"`
	Status       string     `json:"status" gorm:"default:'pending'"`
	Score1       int        `json:"score1" gorm:"default:0"`
	Score2       int        `json:"score2" gorm:"default:0"`
	IsBye        bool       `json:"is_bye" gorm:"default:false"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Terminal reports whether the match has reached a final status.
func (m *Match) Terminal() bool {
	return m.Status == MatchCompleted || m.Status == MatchForfeit
}

// HasPlayer reports whether the given participant is seated in this match.
func (m *Match) HasPlayer(participantID string) bool {
	return participantID != "" && (m.Player1ID == participantID || m.Player2ID == participantID)
}

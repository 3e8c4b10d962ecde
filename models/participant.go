package models

import (
	"time"
)

// Participant is a seated entrant of a tournament. Identity is either a
// stable user id resolved by the gateway or a guest alias; exactly one of
// the two is set, and the pair (tournament_id, identity) is unique.
type Participant struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	TournamentID string     `json:"tournament_id" gorm:"not null;index;uniqueIndex:idx_participant_identity,priority:1"`
	UserID       string     `json:"user_id,omitempty" gorm:"uniqueIndex:idx_participant_identity,priority:2"`
	GuestAlias   string     `json:"guest_alias,omitempty" gorm:"uniqueIndex:idx_participant_identity,priority:3"`
	DisplayName  string     `json:"display_name" gorm:"not null"`
	Seed         int        `json:"seed" gorm:"default:0"`
	IsReady      bool       `json:"is_ready" gorm:"default:false"`
	EliminatedAt *time.Time `json:"eliminated_at,omitempty"`
	FinalRank    int        `json:"final_rank" gorm:"default:0"` // 0 = not ranked yet
	JoinedAt     time.Time  `json:"joined_at" gorm:"autoCreateTime"`
}

// Identity returns the stable identity key for uniqueness checks.
func (p *Participant) Identity() string {
	if p.UserID != "" {
		return p.UserID
	}
	return "guest:" + p.GuestAlias
}

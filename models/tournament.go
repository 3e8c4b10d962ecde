package models

import (
	"time"
)

// Tournament statuses
const (
	TournamentRegistration = "registration"
	TournamentActive       = "active"
	TournamentCompleted    = "completed"
	TournamentCancelled    = "cancelled"
)

// Tournament types
const (
	TournamentSingleElimination = "single_elimination"
)

// Tournament represents a bracketed competition
type Tournament struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Name            string     `json:"name" gorm:"not null"`
	Slug            string     `json:"slug" gorm:"index"`
	Type            string     `json:"type" gorm:"default:'single_elimination'"`
	MaxParticipants int        `json:"max_participants" gorm:"default:16"`
	WinScore        int        `json:"win_score" gorm:"default:11"`
	Status          string     `json:"status" gorm:"default:'registration'"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:TournamentID"`
	Matches      []Match       `json:"matches,omitempty" gorm:"foreignKey:TournamentID"`

	// Calculated fields (not stored in DB)
	ParticipantCount int64 `json:"participant_count,omitempty" gorm:"-"`
}

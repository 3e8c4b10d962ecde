package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"game-match-server/models"
)

const idleRoomWindow = 10 * time.Minute

// StartScheduler runs the periodic housekeeping jobs: auto-starting
// tournaments whose scheduled start has passed, and reaping idle rooms.
func (s *TournamentService) StartScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: start tournaments whose scheduled time has arrived.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var tournaments []models.Tournament
			now := time.Now()
			err := s.DB.Where("status = ? AND scheduled_start IS NOT NULL AND scheduled_start <= ?",
				models.TournamentRegistration, now).
				Find(&tournaments).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, t := range tournaments {
				if err := s.startTournament(t.ID); err != nil {
					// Not enough players yet: leave it in registration and
					// try again on the next tick.
					log.Printf("[Scheduler] cannot start %s: %v", t.Name, err)
				} else {
					log.Printf("✅ Auto-started tournament: %s", t.Name)
				}
			}
		}),
	)

	// Every minute: drop rooms nobody has touched for a while.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if reaped := s.Rooms.Reap(idleRoomWindow); reaped > 0 {
				log.Printf("[Scheduler] reaped %d idle rooms", reaped)
			}
		}),
	)
}

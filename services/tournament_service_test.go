package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"game-match-server/brackets"
	"game-match-server/game"
	"game-match-server/models"
)

func newTestService(t *testing.T) *TournamentService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // one in-memory database, not one per pooled conn
	require.NoError(t, db.AutoMigrate(&models.Tournament{}, &models.Participant{}, &models.Match{}))
	return NewTournamentService(db, game.NewManager(), 30*time.Second)
}

// seedFourPlayers registers participants pA..pD (user ids uA..uD) with
// seeds 1..4 on tournament t1.
func seedFourPlayers(t *testing.T, s *TournamentService) {
	t.Helper()
	tour := models.Tournament{
		ID:              "t1",
		Name:            "Club Open",
		Slug:            "club-open",
		Type:            models.TournamentSingleElimination,
		MaxParticipants: 8,
		WinScore:        11,
		Status:          models.TournamentRegistration,
	}
	require.NoError(t, s.DB.Create(&tour).Error)

	for i, name := range []string{"A", "B", "C", "D"} {
		p := models.Participant{
			ID:           "p" + name,
			TournamentID: tour.ID,
			UserID:       "u" + name,
			DisplayName:  name,
			Seed:         i + 1,
		}
		require.NoError(t, s.DB.Create(&p).Error)
	}
}

func TestFourPlayerBracketRunsToCompletion(t *testing.T) {
	s := newTestService(t)
	seedFourPlayers(t, s)
	require.NoError(t, s.startTournament("t1"))

	var tour models.Tournament
	require.NoError(t, s.DB.First(&tour, "id = ?", "t1").Error)
	assert.Equal(t, models.TournamentActive, tour.Status)
	require.NotNil(t, tour.StartedAt)

	matches, err := s.loadMatches("t1")
	require.NoError(t, err)
	require.Len(t, matches, 3)
	round1 := brackets.RoundMatches(matches, 1)
	require.Len(t, round1, 2)
	assert.Equal(t, "pA", round1[0].Player1ID)
	assert.Equal(t, "pB", round1[0].Player2ID)
	assert.Equal(t, "pC", round1[1].Player1ID)
	assert.Equal(t, "pD", round1[1].Player2ID)
	assert.Equal(t, models.MatchActive, round1[0].Status, "the first playable match opens on start")

	require.NoError(t, s.applyResult(round1[0].ID, "pA", 11, 3, false))
	require.NoError(t, s.applyResult(round1[1].ID, "pC", 11, 7, false))

	matches, err = s.loadMatches("t1")
	require.NoError(t, err)
	final := brackets.RoundMatches(matches, 2)[0]
	assert.Equal(t, "pA", final.Player1ID)
	assert.Equal(t, "pC", final.Player2ID)
	assert.Equal(t, models.MatchActive, final.Status, "the final activates once round 1 resolves")

	require.NoError(t, s.applyResult(final.ID, "pA", 11, 5, false))

	require.NoError(t, s.DB.First(&tour, "id = ?", "t1").Error)
	assert.Equal(t, models.TournamentCompleted, tour.Status)
	require.NotNil(t, tour.CompletedAt)

	var participants []models.Participant
	require.NoError(t, s.DB.Find(&participants).Error)
	ranks := make(map[string]int, len(participants))
	for _, p := range participants {
		ranks[p.ID] = p.FinalRank
	}
	assert.Equal(t, 1, ranks["pA"], "champion ranks first")
	assert.Equal(t, 2, ranks["pC"], "final loser ranks second")
	assert.Equal(t, 3, ranks["pB"])
	assert.Equal(t, 3, ranks["pD"])
}

func TestApplyResultIsIdempotentPerMatch(t *testing.T) {
	s := newTestService(t)
	seedFourPlayers(t, s)
	require.NoError(t, s.startTournament("t1"))

	matches, err := s.loadMatches("t1")
	require.NoError(t, err)
	first := brackets.RoundMatches(matches, 1)[0]

	require.NoError(t, s.applyResult(first.ID, "pA", 11, 3, false))

	// A re-delivered result for a terminal match is a no-op success, even a
	// contradictory one; retries can never rewrite or double-advance.
	require.NoError(t, s.applyResult(first.ID, "pB", 0, 11, false))

	var m models.Match
	require.NoError(t, s.DB.First(&m, "id = ?", first.ID).Error)
	assert.Equal(t, "pA", m.WinnerID)
	assert.Equal(t, 11, m.Score1)
	assert.Equal(t, 3, m.Score2)
	assert.Equal(t, models.MatchCompleted, m.Status)
}

func TestApplyResultValidation(t *testing.T) {
	s := newTestService(t)
	seedFourPlayers(t, s)
	require.NoError(t, s.startTournament("t1"))

	matches, err := s.loadMatches("t1")
	require.NoError(t, err)
	first := brackets.RoundMatches(matches, 1)[0]
	final := brackets.RoundMatches(matches, 2)[0]

	assert.Error(t, s.applyResult(first.ID, "pC", 11, 0, false), "winner must be seated in the match")
	assert.Error(t, s.applyResult(final.ID, "pA", 11, 0, false), "a pending match has no result to record")
	assert.Error(t, s.applyResult("no-such-match", "pA", 11, 0, false))
}

func TestForfeitRecordsLikeANormalResult(t *testing.T) {
	s := newTestService(t)
	seedFourPlayers(t, s)
	require.NoError(t, s.startTournament("t1"))

	matches, err := s.loadMatches("t1")
	require.NoError(t, err)
	first := brackets.RoundMatches(matches, 1)[0]

	require.NoError(t, s.applyResult(first.ID, "pB", 4, 7, true))

	var m models.Match
	require.NoError(t, s.DB.First(&m, "id = ?", first.ID).Error)
	assert.Equal(t, models.MatchForfeit, m.Status)
	assert.Equal(t, "pB", m.WinnerID)

	var loser models.Participant
	require.NoError(t, s.DB.First(&loser, "id = ?", "pA").Error)
	assert.NotNil(t, loser.EliminatedAt)
	assert.Equal(t, 3, loser.FinalRank)
}

func TestRoomResultResolvesUserIdentity(t *testing.T) {
	s := newTestService(t)
	seedFourPlayers(t, s)
	require.NoError(t, s.startTournament("t1"))

	matches, err := s.loadMatches("t1")
	require.NoError(t, err)
	first := brackets.RoundMatches(matches, 1)[0]

	// Rooms report seat identities (user ids here); the service maps them
	// back to participant rows before persisting.
	s.HandleRoomResult(game.Result{
		TournamentID: "t1",
		MatchID:      first.ID,
		WinnerID:     "uA",
		LoserID:      "uB",
		Score1:       11,
		Score2:       9,
	})

	var m models.Match
	require.NoError(t, s.DB.First(&m, "id = ?", first.ID).Error)
	assert.Equal(t, models.MatchCompleted, m.Status)
	assert.Equal(t, "pA", m.WinnerID)
}

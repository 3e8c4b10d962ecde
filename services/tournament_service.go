package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"game-match-server/brackets"
	"game-match-server/game"
	"game-match-server/models"
	"game-match-server/workers"
)

// TournamentService owns the persisted Tournament/Participant/Match records
// and their lifecycle. It is the only component allowed to create a room
// for a tournament match.
type TournamentService struct {
	DB           *gorm.DB
	Rooms        *game.Manager
	Retry        *workers.ResultRetryWorker
	ForfeitGrace time.Duration
}

func NewTournamentService(db *gorm.DB, rooms *game.Manager, forfeitGrace time.Duration) *TournamentService {
	s := &TournamentService{
		DB:           db,
		Rooms:        rooms,
		ForfeitGrace: forfeitGrace,
	}
	s.Retry = workers.NewResultRetryWorker(func(p workers.PendingResult) error {
		return s.applyResult(p.MatchID, p.WinnerID, p.Score1, p.Score2, p.Forfeit)
	})
	return s
}

// RoomKeyFor is the canonical room key for a tournament match.
func RoomKeyFor(tournamentID, matchID string) string {
	return fmt.Sprintf("match:%s:%s", tournamentID, matchID)
}

// --- HTTP handlers ---

type createTournamentRequest struct {
	Name            string     `json:"name"`
	MaxParticipants int        `json:"max_participants"`
	WinScore        int        `json:"win_score"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	var req createTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if req.MaxParticipants <= 0 {
		req.MaxParticipants = 16
	}
	if req.WinScore <= 0 {
		req.WinScore = 11
	}

	creator, _ := c.Locals("user_id").(string)
	t := models.Tournament{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Slug:            slug.Make(req.Name),
		Type:            models.TournamentSingleElimination,
		MaxParticipants: req.MaxParticipants,
		WinScore:        req.WinScore,
		Status:          models.TournamentRegistration,
		ScheduledStart:  req.ScheduledStart,
		CreatedBy:       creator,
	}
	if err := s.DB.Create(&t).Error; err != nil {
		log.Printf("[Tournament] DB error creating tournament: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create tournament"})
	}
	return c.Status(201).JSON(t)
}

func (s *TournamentService) GetAllTournaments(c *fiber.Ctx) error {
	query := s.DB.Model(&models.Tournament{}).Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var tournaments []models.Tournament
	if err := query.Find(&tournaments).Error; err != nil {
		log.Printf("[Tournament] DB error listing tournaments: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	for i := range tournaments {
		s.DB.Model(&models.Participant{}).
			Where("tournament_id = ?", tournaments[i].ID).
			Count(&tournaments[i].ParticipantCount)
	}
	return c.JSON(fiber.Map{"tournaments": tournaments, "count": len(tournaments)})
}

func (s *TournamentService) GetTournamentByID(c *fiber.Ctx) error {
	var t models.Tournament
	err := s.DB.Preload("Participants").Preload("Matches").
		First(&t, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	t.ParticipantCount = int64(len(t.Participants))
	return c.JSON(t)
}

type joinTournamentRequest struct {
	DisplayName string `json:"display_name"`
	GuestAlias  string `json:"guest_alias,omitempty"`
	Seed        int    `json:"seed,omitempty"`
}

// JoinTournament registers the caller (or a named guest) as a participant.
// Identity is unique per tournament: a second join with the same identity
// is rejected, not duplicated.
func (s *TournamentService) JoinTournament(c *fiber.Ctx) error {
	var req joinTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	userID, _ := c.Locals("user_id").(string)
	if userID == "" && req.GuestAlias == "" {
		return c.Status(400).JSON(fiber.Map{"error": "guest_alias required for unauthenticated join"})
	}

	var t models.Tournament
	if err := s.DB.First(&t, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if t.Status != models.TournamentRegistration {
		return c.Status(409).JSON(fiber.Map{"error": "registration is closed"})
	}

	var count int64
	s.DB.Model(&models.Participant{}).Where("tournament_id = ?", t.ID).Count(&count)
	if int(count) >= t.MaxParticipants {
		return c.Status(409).JSON(fiber.Map{"error": "tournament is full"})
	}

	identityQuery := s.DB.Model(&models.Participant{}).Where("tournament_id = ?", t.ID)
	if userID != "" {
		identityQuery = identityQuery.Where("user_id = ?", userID)
	} else {
		identityQuery = identityQuery.Where("guest_alias = ?", req.GuestAlias)
	}
	var dup int64
	identityQuery.Count(&dup)
	if dup > 0 {
		return c.Status(409).JSON(fiber.Map{"error": "already registered"})
	}

	name := req.DisplayName
	if name == "" {
		if uName, _ := c.Locals("user_name").(string); uName != "" {
			name = uName
		} else {
			name = req.GuestAlias
		}
	}

	p := models.Participant{
		ID:           uuid.NewString(),
		TournamentID: t.ID,
		UserID:       userID,
		GuestAlias:   req.GuestAlias,
		DisplayName:  name,
		Seed:         req.Seed,
	}
	if err := s.DB.Create(&p).Error; err != nil {
		log.Printf("[Tournament] DB error adding participant: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to join tournament"})
	}
	return c.Status(201).JSON(p)
}

func (s *TournamentService) GetParticipants(c *fiber.Ctx) error {
	var participants []models.Participant
	err := s.DB.Where("tournament_id = ?", c.Params("id")).
		Order("seed ASC, joined_at ASC").Find(&participants).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"participants": participants, "count": len(participants)})
}

// StartTournament closes registration, generates the whole bracket up
// front and opens a room for the first playable match.
func (s *TournamentService) StartTournament(c *fiber.Ctx) error {
	if err := s.startTournament(c.Params("id")); err != nil {
		var httpErr *fiber.Error
		if errors.As(err, &httpErr) {
			return c.Status(httpErr.Code).JSON(fiber.Map{"error": httpErr.Message})
		}
		log.Printf("[Tournament] start failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to start tournament"})
	}
	return s.GetBrackets(c)
}

func (s *TournamentService) startTournament(tournamentID string) error {
	var t models.Tournament
	if err := s.DB.First(&t, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(404, "tournament not found")
		}
		return err
	}
	if t.Status != models.TournamentRegistration {
		return fiber.NewError(409, "tournament already started")
	}

	var participants []models.Participant
	if err := s.DB.Where("tournament_id = ?", t.ID).Find(&participants).Error; err != nil {
		return err
	}
	if len(participants) < 2 {
		return fiber.NewError(409, "at least 2 participants required")
	}

	seeded := brackets.Seed(participants)
	matches, err := brackets.Generate(t.ID, seeded)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Stamp the effective seed order so later queries are stable.
		for i := range seeded {
			if err := tx.Model(&models.Participant{}).
				Where("id = ?", seeded[i].ID).Update("seed", i+1).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&matches).Error; err != nil {
			return err
		}
		return tx.Model(&t).Updates(map[string]interface{}{
			"status":     models.TournamentActive,
			"started_at": &now,
		}).Error
	})
	if err != nil {
		return err
	}

	log.Printf("[Tournament] %s started: %d participants, %d matches", t.Name, len(participants), len(matches))
	s.openCurrentMatch(t.ID)
	return nil
}

// CancelTournament aborts a tournament from registration or active state.
// Live rooms for its matches are torn down; finished results stay recorded.
func (s *TournamentService) CancelTournament(c *fiber.Ctx) error {
	var t models.Tournament
	if err := s.DB.First(&t, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if t.Status == models.TournamentCompleted || t.Status == models.TournamentCancelled {
		return c.Status(409).JSON(fiber.Map{"error": "tournament already finished"})
	}

	matches, err := s.loadMatches(t.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	for _, m := range matches {
		s.Rooms.Remove(RoomKeyFor(t.ID, m.ID))
	}

	now := time.Now()
	if err := s.DB.Model(&t).Updates(map[string]interface{}{
		"status":       models.TournamentCancelled,
		"completed_at": &now,
	}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to cancel tournament"})
	}
	log.Printf("[Tournament] %s cancelled", t.Name)
	return c.JSON(fiber.Map{"message": "tournament cancelled"})
}

func (s *TournamentService) GetMatches(c *fiber.Ctx) error {
	var matches []models.Match
	err := s.DB.Where("tournament_id = ?", c.Params("id")).
		Order("round ASC, match_number ASC").Find(&matches).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"matches": matches, "count": len(matches)})
}

// GetCurrentMatch answers "which match should be played now". It is a pure
// query over the match rows, re-derived on every call so out-of-order
// result reporting can never leave a stale pointer behind.
func (s *TournamentService) GetCurrentMatch(c *fiber.Ctx) error {
	matches, err := s.loadMatches(c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	current := brackets.CurrentMatch(matches)
	if current == nil {
		return c.Status(404).JSON(fiber.Map{"error": "no pending match"})
	}
	return c.JSON(fiber.Map{
		"match":    current,
		"room_key": RoomKeyFor(current.TournamentID, current.ID),
	})
}

func (s *TournamentService) GetNextMatch(c *fiber.Ctx) error {
	matches, err := s.loadMatches(c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	next := brackets.NextMatch(matches)
	if next == nil {
		return c.Status(404).JSON(fiber.Map{"error": "no upcoming match"})
	}
	return c.JSON(fiber.Map{"match": next})
}

type reportResultRequest struct {
	WinnerID string `json:"winner_id"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
	Forfeit  bool   `json:"forfeit"`
}

// ReportResult records a final score for a match, e.g. from an operator
// correcting a stalled bracket. Room-driven results take the same path.
func (s *TournamentService) ReportResult(c *fiber.Ctx) error {
	var req reportResultRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	err := s.applyResult(c.Params("match_id"), req.WinnerID, req.Score1, req.Score2, req.Forfeit)
	if err != nil {
		var httpErr *fiber.Error
		if errors.As(err, &httpErr) {
			return c.Status(httpErr.Code).JSON(fiber.Map{"error": httpErr.Message})
		}
		log.Printf("[Tournament] report result failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to record result"})
	}
	return c.JSON(fiber.Map{"message": "result recorded"})
}

func (s *TournamentService) GetBrackets(c *fiber.Ctx) error {
	matches, err := s.loadMatches(c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	rounds := make(map[int][]models.Match)
	maxRound := 0
	for _, m := range matches {
		rounds[m.Round] = append(rounds[m.Round], m)
		if m.Round > maxRound {
			maxRound = m.Round
		}
	}
	out := make([][]models.Match, 0, maxRound)
	for r := 1; r <= maxRound; r++ {
		out = append(out, brackets.RoundMatches(matches, r))
	}
	return c.JSON(fiber.Map{"rounds": out, "round_count": maxRound})
}

// GetStats aggregates per-participant results for a tournament.
func (s *TournamentService) GetStats(c *fiber.Ctx) error {
	tournamentID := c.Params("id")

	var participants []models.Participant
	if err := s.DB.Where("tournament_id = ?", tournamentID).Find(&participants).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	matches, err := s.loadMatches(tournamentID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	type stat struct {
		ParticipantID string `json:"participant_id"`
		DisplayName   string `json:"display_name"`
		FinalRank     int    `json:"final_rank"`
		Wins          int    `json:"wins"`
		Losses        int    `json:"losses"`
		PointsFor     int    `json:"points_for"`
		PointsAgainst int    `json:"points_against"`
	}
	stats := make(map[string]*stat, len(participants))
	for _, p := range participants {
		stats[p.ID] = &stat{ParticipantID: p.ID, DisplayName: p.DisplayName, FinalRank: p.FinalRank}
	}
	for _, m := range matches {
		if !m.Terminal() || m.IsBye {
			continue
		}
		if st, ok := stats[m.Player1ID]; ok {
			st.PointsFor += m.Score1
			st.PointsAgainst += m.Score2
			if m.WinnerID == m.Player1ID {
				st.Wins++
			} else {
				st.Losses++
			}
		}
		if st, ok := stats[m.Player2ID]; ok {
			st.PointsFor += m.Score2
			st.PointsAgainst += m.Score1
			if m.WinnerID == m.Player2ID {
				st.Wins++
			} else {
				st.Losses++
			}
		}
	}
	out := make([]stat, 0, len(participants))
	for _, p := range participants {
		out = append(out, *stats[p.ID])
	}
	return c.JSON(fiber.Map{"stats": out})
}

// --- result pipeline ---

// HandleRoomResult receives a finished room's outcome. The in-memory
// result stands immediately; a failed write goes to the retry worker with
// idempotent keying instead of blocking or losing the outcome.
func (s *TournamentService) HandleRoomResult(res game.Result) {
	if res.MatchID == "" {
		return // ad-hoc room, nothing to persist
	}

	winnerPID, err := s.resolveParticipant(res.TournamentID, res.WinnerID)
	if err != nil {
		log.Printf("[Tournament] cannot resolve winner %s for match %s: %v", res.WinnerID, res.MatchID, err)
		return
	}

	if err := s.applyResult(res.MatchID, winnerPID, res.Score1, res.Score2, res.Forfeit); err != nil {
		log.Printf("[Tournament] result write for match %s failed, queued for retry: %v", res.MatchID, err)
		s.Retry.Enqueue(workers.PendingResult{
			MatchID:  res.MatchID,
			WinnerID: winnerPID,
			Score1:   res.Score1,
			Score2:   res.Score2,
			Forfeit:  res.Forfeit,
		})
	}
}

// resolveParticipant maps a room identity (user id, or participant id for
// guests) back to the participant row.
func (s *TournamentService) resolveParticipant(tournamentID, identity string) (string, error) {
	var p models.Participant
	err := s.DB.Where("tournament_id = ? AND (user_id = ? OR id = ?)", tournamentID, identity, identity).
		First(&p).Error
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// applyResult persists a match outcome exactly once and advances the
// bracket. Idempotent on the match id: a re-delivered result for an
// already-terminal match is a no-op success, so retries can never
// double-advance the bracket.
func (s *TournamentService) applyResult(matchID, winnerID string, score1, score2 int, forfeit bool) error {
	var m models.Match
	if err := s.DB.First(&m, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(404, "match not found")
		}
		return err
	}
	if m.Terminal() {
		return nil
	}
	if m.Status != models.MatchActive {
		return fiber.NewError(409, "match is not active")
	}
	if !m.HasPlayer(winnerID) {
		return fiber.NewError(400, "winner is not seated in this match")
	}

	status := models.MatchCompleted
	if forfeit {
		status = models.MatchForfeit
	}
	loserID := m.Player1ID
	if loserID == winnerID {
		loserID = m.Player2ID
	}

	now := time.Now()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", m.ID, models.MatchActive).
			Updates(map[string]interface{}{
				"winner_id":    winnerID,
				"status":       status,
				"score1":       score1,
				"score2":       score2,
				"completed_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // lost the race to another writer; already terminal
		}
		if loserID != "" {
			if err := tx.Model(&models.Participant{}).Where("id = ?", loserID).
				Updates(map[string]interface{}{"eliminated_at": &now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.advanceBracket(m.TournamentID, m.Round, loserID)
}

func (s *TournamentService) advanceBracket(tournamentID string, round int, loserID string) error {
	matches, err := s.loadMatches(tournamentID)
	if err != nil {
		return err
	}

	totalRounds := 0
	for _, m := range matches {
		if m.Round > totalRounds {
			totalRounds = m.Round
		}
	}
	if loserID != "" {
		rank := rankForLoser(totalRounds, round)
		if err := s.DB.Model(&models.Participant{}).Where("id = ?", loserID).
			Update("final_rank", rank).Error; err != nil {
			return err
		}
	}

	if !brackets.RoundComplete(matches, round) {
		s.openCurrentMatch(tournamentID)
		return nil
	}

	next, done, err := brackets.Advance(matches, round)
	if err != nil {
		return err
	}
	if done {
		return s.completeTournament(tournamentID, matches)
	}

	for i := range next {
		if err := s.DB.Model(&models.Match{}).Where("id = ?", next[i].ID).
			Updates(map[string]interface{}{
				"player1_id": next[i].Player1ID,
				"player2_id": next[i].Player2ID,
			}).Error; err != nil {
			return err
		}
	}
	log.Printf("[Tournament] %s: round %d complete, round %d seeded", tournamentID, round, round+1)
	s.openCurrentMatch(tournamentID)
	return nil
}

func (s *TournamentService) completeTournament(tournamentID string, matches []models.Match) error {
	// The champion is the winner of the single match in the highest round.
	var champion string
	maxRound := 0
	for _, m := range matches {
		if m.Round > maxRound {
			maxRound = m.Round
		}
	}
	for _, m := range brackets.RoundMatches(matches, maxRound) {
		champion = m.WinnerID
	}

	now := time.Now()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if champion != "" {
			if err := tx.Model(&models.Participant{}).Where("id = ?", champion).
				Update("final_rank", 1).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Tournament{}).Where("id = ?", tournamentID).
			Updates(map[string]interface{}{
				"status":       models.TournamentCompleted,
				"completed_at": &now,
			}).Error
	})
	if err != nil {
		return err
	}
	log.Printf("[Tournament] %s completed, champion participant %s", tournamentID, champion)
	return nil
}

// rankForLoser converts the round a participant lost in into a final rank:
// losing the final is 2nd, a semifinal 3rd, a quarterfinal 5th, and so on.
func rankForLoser(totalRounds, round int) int {
	if round >= totalRounds {
		return 2
	}
	return (1 << uint(totalRounds-round)) + 1
}

// openCurrentMatch makes sure the next playable match is active and has a
// live room. Safe to call repeatedly: activation is guarded by the match
// status and room creation by the manager's per-key invariant.
func (s *TournamentService) openCurrentMatch(tournamentID string) {
	matches, err := s.loadMatches(tournamentID)
	if err != nil {
		log.Printf("[Tournament] load matches for %s: %v", tournamentID, err)
		return
	}
	current := brackets.CurrentMatch(matches)
	if current == nil || current.Player1ID == "" || current.Player2ID == "" {
		return
	}

	var t models.Tournament
	if err := s.DB.First(&t, "id = ?", tournamentID).Error; err != nil {
		return
	}

	if current.Status == models.MatchPending {
		now := time.Now()
		if err := s.DB.Model(&models.Match{}).Where("id = ?", current.ID).
			Updates(map[string]interface{}{
				"status":     models.MatchActive,
				"started_at": &now,
			}).Error; err != nil {
			log.Printf("[Tournament] activate match %s: %v", current.ID, err)
			return
		}
	}

	seats, err := s.seatIdentities(tournamentID, current)
	if err != nil {
		log.Printf("[Tournament] seat identities for match %s: %v", current.ID, err)
		return
	}

	key := RoomKeyFor(tournamentID, current.ID)
	_, created := s.Rooms.GetOrCreate(key, game.Options{
		TournamentID: tournamentID,
		MatchID:      current.ID,
		WinScore:     t.WinScore,
		AllowedSeats: seats,
		ForfeitGrace: s.ForfeitGrace,
		OnResult:     s.HandleRoomResult,
	})
	if created {
		log.Printf("[Tournament] room %s opened for round %d match %d", key, current.Round, current.MatchNumber)
	}
}

// seatIdentities maps the match's participants to the identities their
// connections will present: the user id for authenticated players, the
// participant id for guests. Player 1 always takes the left paddle.
func (s *TournamentService) seatIdentities(tournamentID string, m *models.Match) (map[string]game.Side, error) {
	seats := make(map[string]game.Side, 2)
	for i, pid := range []string{m.Player1ID, m.Player2ID} {
		var p models.Participant
		if err := s.DB.First(&p, "id = ?", pid).Error; err != nil {
			return nil, err
		}
		identity := p.UserID
		if identity == "" {
			identity = p.ID
		}
		seats[identity] = game.Side(i)
	}
	return seats, nil
}

func (s *TournamentService) loadMatches(tournamentID string) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.Where("tournament_id = ?", tournamentID).
		Order("round ASC, match_number ASC").Find(&matches).Error
	return matches, err
}

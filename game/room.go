package game

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Side is a seat assignment: left paddle, right paddle, or spectator.
type Side int

const (
	SideSpectator Side = -1
	SideLeft      Side = 0
	SideRight     Side = 1
)

const (
	tickInterval      = time.Second / 60
	broadcastInterval = 1.0 / 25 // seconds between state_update events
	maxTickDelta      = 0.1      // clamp dt after scheduler stalls
)

var (
	ErrRoomClosed    = errors.New("room is closed")
	ErrNotAPlayer    = errors.New("action requires a player seat")
	ErrNotInRoom     = errors.New("not a member of this room")
	ErrBadIntent     = errors.New("intent direction must be -1, 0 or 1")
	ErrMatchFinished = errors.New("match already finished")
	ErrSeatsTaken    = errors.New("both seats are taken")
)

// Event is pushed to the room's event channel for the session gateway to
// fan out. Sends are non-blocking: a full channel drops the event rather
// than stalling a state transition.
type Event struct {
	Type string         `json:"event"`
	Data map[string]any `json:"data"`
}

// Result is the final outcome of a room's match, delivered exactly once.
type Result struct {
	RoomKey      string
	TournamentID string
	MatchID      string
	WinnerID     string
	LoserID      string
	Score1       int // left seat
	Score2       int // right seat
	Forfeit      bool
}

// Options configures a room at creation time.
type Options struct {
	TournamentID string
	MatchID      string
	// WinScore 0 means no threshold (ad-hoc play); otherwise the room
	// finishes when either score reaches it.
	WinScore int
	// AllowedSeats restricts player seats to specific identities
	// (tournament seating). Anyone else joins as a spectator.
	AllowedSeats map[string]Side
	Seed         int64
	ForfeitGrace time.Duration
	ReadyDelay   time.Duration
	OnResult     func(Result)
}

type seat struct {
	PlayerID string
	Name     string
	Side     Side
	Ready    bool
	Absent   bool
}

// MemberInfo is the wire-facing view of a seat.
type MemberInfo struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Side     Side   `json:"side"`
	Ready    bool   `json:"ready"`
	Absent   bool   `json:"absent"`
}

// Info is a point-in-time description of the room for snapshots.
type Info struct {
	Key          string       `json:"room_key"`
	TournamentID string       `json:"tournament_id,omitempty"`
	MatchID      string       `json:"match_id,omitempty"`
	Members      []MemberInfo `json:"members"`
	Spectators   int          `json:"spectators"`
	State        Snapshot     `json:"state"`
}

// Room owns one match: its authoritative state, the two intent slots, the
// membership layer and the control state machine. Every mutation happens
// under the room's own lock; rooms share no mutable state with each other.
type Room struct {
	Key          string
	TournamentID string
	MatchID      string

	mu           sync.Mutex
	state        *State
	rng          *rand.Rand
	seats        [2]*seat
	spectators   map[string]string // playerID -> display name
	intents      [2]Intent
	allowedSeats map[string]Side

	winScore     int
	forfeitGrace time.Duration
	readyDelay   time.Duration
	onResult     func(Result)

	events chan Event

	graceTimers map[string]*time.Timer
	countdown   *time.Timer
	tickStop    chan struct{}
	tickDone    chan struct{}
	ai          *AIController

	sinceBroadcast float64
	lastUpdate     time.Time
	lastActive     time.Time
	finished       bool
	closed         bool
}

// NewRoom creates a room in PhaseReady. The seed feeds the only entropy
// source (serve angles), so a fixed seed replays identically.
func NewRoom(key string, opts Options) *Room {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.ForfeitGrace <= 0 {
		opts.ForfeitGrace = 30 * time.Second
	}
	if opts.ReadyDelay <= 0 {
		opts.ReadyDelay = 3 * time.Second
	}
	return &Room{
		Key:          key,
		TournamentID: opts.TournamentID,
		MatchID:      opts.MatchID,
		state:        NewState(),
		rng:          rand.New(rand.NewSource(seed)),
		spectators:   make(map[string]string),
		allowedSeats: opts.AllowedSeats,
		winScore:     opts.WinScore,
		forfeitGrace: opts.ForfeitGrace,
		readyDelay:   opts.ReadyDelay,
		onResult:     opts.OnResult,
		events:       make(chan Event, 256),
		graceTimers:  make(map[string]*time.Timer),
		lastActive:   time.Now(),
	}
}

// Join seats the first two distinct identities as players and attaches
// everyone else as a spectator. Re-joining with a seated identity returns
// the existing seat (and cancels any disconnect grace timer) instead of
// creating a duplicate slot.
func (r *Room) Join(playerID, name string, want Side) (Side, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return SideSpectator, ErrRoomClosed
	}

	if st := r.seatOf(playerID); st != nil {
		st.Absent = false
		if t, ok := r.graceTimers[playerID]; ok {
			t.Stop()
			delete(r.graceTimers, playerID)
		}
		r.touch()
		r.sendEvent(Event{Type: "player_joined", Data: map[string]any{
			"player_id": playerID, "side": st.Side, "rejoined": true,
		}})
		return st.Side, nil
	}
	if _, ok := r.spectators[playerID]; ok {
		return SideSpectator, nil
	}

	side := r.pickSeat(playerID, want)
	if side == SideSpectator {
		r.spectators[playerID] = name
	} else {
		r.seats[side] = &seat{PlayerID: playerID, Name: name, Side: side}
		r.intents[side] = IntentStop
	}

	r.touch()
	r.sendEvent(Event{Type: "player_joined", Data: map[string]any{
		"player_id": playerID, "side": side,
	}})
	return side, nil
}

func (r *Room) pickSeat(playerID string, want Side) Side {
	if r.allowedSeats != nil {
		side, ok := r.allowedSeats[playerID]
		if !ok {
			return SideSpectator
		}
		if r.seats[side] == nil {
			return side
		}
		return SideSpectator
	}
	if (want == SideLeft || want == SideRight) && r.seats[want] == nil {
		return want
	}
	for _, s := range []Side{SideLeft, SideRight} {
		if r.seats[s] == nil {
			return s
		}
	}
	return SideSpectator
}

// SetReady flags a player seat. Once both seats report ready in PhaseReady
// the room arms a short countdown and then transitions to Playing on its
// own; retracting readiness disarms it.
func (r *Room) SetReady(playerID string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	st := r.seatOf(playerID)
	if st == nil {
		if _, ok := r.spectators[playerID]; ok {
			return ErrNotAPlayer
		}
		return ErrNotInRoom
	}

	st.Ready = ready
	r.touch()
	r.sendEvent(Event{Type: "player_ready", Data: map[string]any{
		"player_id": playerID, "ready": ready,
	}})

	if ready && r.bothReady() && r.state.Phase == PhaseReady && r.countdown == nil {
		r.countdown = time.AfterFunc(r.readyDelay, r.autoStart)
		r.sendEvent(Event{Type: "game_start", Data: r.infoData()})
	}
	if !ready && r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	return nil
}

func (r *Room) autoStart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.countdown = nil
	if r.closed || r.finished || r.state.Phase != PhaseReady || !r.bothReady() {
		return
	}
	r.state.ApplyControl(ControlStart)
	r.startTickLocked()
	r.sendEvent(Event{Type: "game_playing", Data: r.infoData()})
}

// HandleControl applies a start/pause/reset request from a seated player.
func (r *Room) HandleControl(playerID string, ev ControlEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if r.seatOf(playerID) == nil {
		if _, ok := r.spectators[playerID]; ok {
			return ErrNotAPlayer
		}
		return ErrNotInRoom
	}
	if r.finished {
		return ErrMatchFinished
	}

	phase := r.state.ApplyControl(ev)
	if phase == PhasePlaying {
		r.startTickLocked()
	} else {
		r.stopTickLocked()
	}
	if ev == ControlReset {
		for _, st := range r.seats {
			if st != nil {
				st.Ready = false
			}
		}
		r.intents[SideLeft], r.intents[SideRight] = IntentStop, IntentStop
	}

	r.touch()
	r.sendEvent(Event{Type: controlEventName(ev, phase), Data: r.infoData()})
	return nil
}

func controlEventName(ev ControlEvent, phase Phase) string {
	switch ev {
	case ControlPause:
		return "game_paused"
	case ControlReset:
		return "game_reset"
	default:
		if phase == PhasePlaying {
			return "game_playing"
		}
		return "game_start"
	}
}

// SetIntent records a player's desired paddle direction. Spectators are
// rejected explicitly so clients can surface the error.
func (r *Room) SetIntent(playerID string, d Intent) error {
	if d < IntentUp || d > IntentDown {
		return ErrBadIntent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	st := r.seatOf(playerID)
	if st == nil {
		if _, ok := r.spectators[playerID]; ok {
			return ErrNotAPlayer
		}
		return ErrNotInRoom
	}
	r.intents[st.Side] = d
	return nil
}

// Leave detaches a member. A mid-match seat is not forfeited immediately:
// the player is marked absent and has the grace window to rejoin before
// the room reports a forfeit.
func (r *Room) Leave(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.spectators[playerID]; ok {
		delete(r.spectators, playerID)
		r.sendEvent(Event{Type: "player_left", Data: map[string]any{"player_id": playerID}})
		return
	}
	st := r.seatOf(playerID)
	if st == nil {
		return
	}

	st.Ready = false
	r.intents[st.Side] = IntentStop
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	r.sendEvent(Event{Type: "player_left", Data: map[string]any{"player_id": playerID}})

	// A paused match is still mid-game: the seat stays reserved through the
	// same grace window as a live one.
	if (r.state.Phase == PhasePlaying || r.state.Phase == PhasePaused) && !r.finished {
		st.Absent = true
		id := playerID
		r.graceTimers[id] = time.AfterFunc(r.forfeitGrace, func() { r.forfeitAbsent(id) })
		return
	}
	r.seats[st.Side] = nil
	r.touch()
}

func (r *Room) forfeitAbsent(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.graceTimers, playerID)
	if r.closed || r.finished {
		return
	}
	st := r.seatOf(playerID)
	if st == nil || !st.Absent {
		return // rejoined within the grace window
	}
	other := r.seats[1-st.Side]
	if other == nil {
		// Both seats gone; nothing to award, just end the match.
		r.finishLocked("", "", true)
		return
	}
	r.finishLocked(other.PlayerID, st.PlayerID, true)
}

// AttachAI fills a free seat with an AI opponent and starts its controller.
func (r *Room) AttachAI(difficulty Difficulty) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRoomClosed
	}
	var side Side = SideSpectator
	for _, s := range []Side{SideRight, SideLeft} {
		if r.seats[s] == nil {
			side = s
			break
		}
	}
	if side == SideSpectator {
		return "", ErrSeatsTaken
	}

	id := "ai:" + uuid.NewString()
	r.seats[side] = &seat{PlayerID: id, Name: "Computer", Side: side, Ready: true}
	r.intents[side] = IntentStop
	r.ai = NewAIController(id, side, difficulty, r.rng.Int63())
	go r.ai.Run(r)

	r.sendEvent(Event{Type: "player_joined", Data: map[string]any{
		"player_id": id, "side": side, "ai": true,
	}})
	return id, nil
}

// --- tick loop ---

func (r *Room) startTickLocked() {
	if r.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.tickStop, r.tickDone = stop, done
	go r.run(stop, done)
}

func (r *Room) stopTickLocked() {
	if r.tickStop != nil {
		close(r.tickStop)
		r.tickStop = nil
		r.tickDone = nil
	}
}

func (r *Room) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > maxTickDelta {
				dt = maxTickDelta
			}
			r.tick(dt, now)
		}
	}
}

// tick is the sole writer of match state while playing. It re-checks phase
// and closed under the lock so a stray timer firing during teardown can
// never resurrect a torn-down room's state.
func (r *Room) tick(dt float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.finished || r.state.Phase != PhasePlaying {
		return
	}

	r.state.Step(r.intents[SideLeft], r.intents[SideRight], dt, r.rng)
	r.lastUpdate = now
	r.lastActive = now

	if r.winScore > 0 && (r.state.LeftScore >= r.winScore || r.state.RightScore >= r.winScore) {
		winSide := SideLeft
		if r.state.RightScore > r.state.LeftScore {
			winSide = SideRight
		}
		var winID, loseID string
		if s := r.seats[winSide]; s != nil {
			winID = s.PlayerID
		}
		if s := r.seats[1-winSide]; s != nil {
			loseID = s.PlayerID
		}
		r.finishLocked(winID, loseID, false)
		return
	}

	r.sinceBroadcast += dt
	if r.sinceBroadcast >= broadcastInterval {
		r.sinceBroadcast = 0
		r.sendEvent(Event{Type: "state_update", Data: map[string]any{"state": r.state.Snapshot()}})
	}
}

// finishLocked transitions to PhaseFinished and emits the result exactly
// once. The result callback runs on its own goroutine: persistence happens
// after the in-memory transition, never under the room lock.
func (r *Room) finishLocked(winnerID, loserID string, forfeit bool) {
	if r.finished {
		return
	}
	r.finished = true
	r.state.Finish()
	r.stopTickLocked()
	r.cancelTimersLocked()
	if r.ai != nil {
		go r.ai.Stop()
	}

	r.sendEvent(Event{Type: "game_end", Data: map[string]any{
		"winner_id": winnerID,
		"score1":    r.state.LeftScore,
		"score2":    r.state.RightScore,
		"forfeit":   forfeit,
	}})

	if r.onResult != nil && winnerID != "" {
		res := Result{
			RoomKey:      r.Key,
			TournamentID: r.TournamentID,
			MatchID:      r.MatchID,
			WinnerID:     winnerID,
			LoserID:      loserID,
			Score1:       r.state.LeftScore,
			Score2:       r.state.RightScore,
			Forfeit:      forfeit,
		}
		go r.onResult(res)
	}
}

func (r *Room) cancelTimersLocked() {
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	for id, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, id)
	}
}

// Stop tears the room down deterministically: the tick loop, the countdown
// and grace timers, and any AI controller are all cancelled before the
// event channel closes.
func (r *Room) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	done := r.tickDone
	r.stopTickLocked()
	r.cancelTimersLocked()
	ai := r.ai
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	if ai != nil {
		ai.Stop()
	}

	r.mu.Lock()
	close(r.events)
	r.mu.Unlock()
}

// --- read side ---

// StateSnapshot returns a copy of the current match state.
func (r *Room) StateSnapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

// Info returns the full membership + state view used for phase events.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

func (r *Room) infoLocked() Info {
	members := make([]MemberInfo, 0, 2)
	for _, st := range r.seats {
		if st == nil {
			continue
		}
		members = append(members, MemberInfo{
			PlayerID: st.PlayerID, Name: st.Name, Side: st.Side,
			Ready: st.Ready, Absent: st.Absent,
		})
	}
	return Info{
		Key:          r.Key,
		TournamentID: r.TournamentID,
		MatchID:      r.MatchID,
		Members:      members,
		Spectators:   len(r.spectators),
		State:        r.state.Snapshot(),
	}
}

func (r *Room) infoData() map[string]any {
	return map[string]any{"room": r.infoLocked()}
}

// Events exposes the room's event stream for the session gateway.
func (r *Room) Events() <-chan Event {
	return r.events
}

// Finished reports whether the match has reached a terminal state.
func (r *Room) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Idle reports whether the room has been memberless or finished for longer
// than the given window. Used by the reaper sweep.
func (r *Room) Idle(window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// An AI seat does not keep a room alive on its own.
	humans := 0
	for _, st := range r.seats {
		if st != nil && (r.ai == nil || st.PlayerID != r.ai.PlayerID) {
			humans++
		}
	}
	empty := humans == 0 && len(r.spectators) == 0
	return (empty || r.finished) && time.Since(r.lastActive) > window
}

func (r *Room) seatOf(playerID string) *seat {
	for _, st := range r.seats {
		if st != nil && st.PlayerID == playerID {
			return st
		}
	}
	return nil
}

func (r *Room) bothReady() bool {
	l, rt := r.seats[SideLeft], r.seats[SideRight]
	return l != nil && rt != nil && l.Ready && rt.Ready
}

func (r *Room) touch() {
	r.lastActive = time.Now()
}

// sendEvent is non-blocking and must be called with the lock held.
func (r *Room) sendEvent(ev Event) {
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		// Channel full: drop rather than stall a state transition.
	}
}

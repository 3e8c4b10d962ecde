package game

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Difficulty selects an AI profile.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// aiProfile tunes how human the controller feels. Reaction bounds how fast
// it can respond to a direction change; accuracy scales prediction error;
// mistake is the per-decision chance of a flipped or frozen input.
type aiProfile struct {
	Reaction time.Duration
	Accuracy float64
	Mistake  float64
}

var aiProfiles = map[Difficulty]aiProfile{
	DifficultyEasy:   {Reaction: 450 * time.Millisecond, Accuracy: 0.55, Mistake: 0.12},
	DifficultyMedium: {Reaction: 280 * time.Millisecond, Accuracy: 0.75, Mistake: 0.06},
	DifficultyHard:   {Reaction: 140 * time.Millisecond, Accuracy: 0.92, Mistake: 0.02},
}

const (
	aiPlanInterval = time.Second
	aiDriveEvery   = 50 * time.Millisecond
	// Paddle-center deadzone in pixels. Without it the paddle oscillates
	// around the target, which reads as jitter, not play.
	aiDeadzone = 14.0

	aiAdaptStreak = 3
	aiAdaptStep   = 0.05
	aiMinAccuracy = 0.40
	aiMaxAccuracy = 0.98
)

// AIController emits paddle intents for one side of a room, paced like a
// human: it replans about once a second, sits on a new observation for its
// reaction delay before acting, and misjudges arrival positions in
// proportion to (1 - accuracy).
type AIController struct {
	PlayerID string

	side Side
	prof aiProfile
	rng  *rand.Rand

	mu       sync.Mutex
	accuracy float64

	// Planning state, touched only by the run loop (or by tests driving
	// advance directly).
	nextPlanAt     time.Time
	pendingTarget  float64
	pendingApplyAt time.Time
	hasPending     bool
	activeTarget   float64
	hasTarget      bool
	mistake        Intent // applied modifier for the current plan cycle
	forceFreeze    bool

	// Rubber-banding streaks, derived from score changes.
	lastLeft, lastRight  int
	concedes, conversions int

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewAIController builds a controller for the given seat. The seed makes a
// given AI run reproducible in tests.
func NewAIController(playerID string, side Side, difficulty Difficulty, seed int64) *AIController {
	prof, ok := aiProfiles[difficulty]
	if !ok {
		prof = aiProfiles[DifficultyMedium]
	}
	return &AIController{
		PlayerID: playerID,
		side:     side,
		prof:     prof,
		accuracy: prof.Accuracy,
		rng:      rand.New(rand.NewSource(seed)),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the room until Stop is called or the room finishes. A neutral
// intent is always written on the way out so a departing AI never leaves a
// stuck input.
func (a *AIController) Run(room *Room) {
	defer close(a.done)
	defer room.SetIntent(a.PlayerID, IntentStop)

	ticker := time.NewTicker(aiDriveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case now := <-ticker.C:
			snap := room.StateSnapshot()
			if snap.Phase == PhaseFinished {
				return
			}
			room.SetIntent(a.PlayerID, a.advance(now, snap))
		}
	}
}

// Stop tears the controller down and waits for the run loop to exit.
func (a *AIController) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	<-a.done
}

// advance consumes one observation and returns the intent to apply. Split
// from Run so the cadence can be tested with a synthetic clock.
func (a *AIController) advance(now time.Time, snap Snapshot) Intent {
	a.adapt(snap)

	if now.After(a.nextPlanAt) || a.nextPlanAt.IsZero() {
		a.plan(now, snap)
	}
	if a.hasPending && !now.Before(a.pendingApplyAt) {
		a.activeTarget = a.pendingTarget
		a.hasTarget = true
		a.hasPending = false
	}
	if !a.hasTarget {
		return IntentStop
	}
	if a.forceFreeze {
		return IntentStop
	}

	paddleY := snap.RightY
	if a.side == SideLeft {
		paddleY = snap.LeftY
	}
	center := paddleY + PaddleHeight/2

	var dir Intent
	switch {
	case a.activeTarget < center-aiDeadzone:
		dir = IntentUp
	case a.activeTarget > center+aiDeadzone:
		dir = IntentDown
	default:
		dir = IntentStop
	}
	if a.mistake == IntentUp || a.mistake == IntentDown {
		// A committed wrong read: keep pushing the flipped direction for
		// the rest of this plan cycle.
		dir = -dir
	}
	return dir
}

// plan recomputes the target once per planning cycle. The decision only
// takes effect after the reaction delay, which is what bounds how fast the
// AI answers a direction change.
func (a *AIController) plan(now time.Time, snap Snapshot) {
	a.nextPlanAt = now.Add(aiPlanInterval)

	incoming := snap.BallVX > 0
	paddleX := BoardWidth - PaddleMargin - PaddleWidth
	if a.side == SideLeft {
		incoming = snap.BallVX < 0
		paddleX = PaddleMargin + PaddleWidth
	}

	var target float64
	if incoming {
		target = PredictArrivalY(snap.BallX, snap.BallY, snap.BallVX, snap.BallVY, paddleX, BoardHeight)
		a.mu.Lock()
		errRange := (1 - a.accuracy) * (BoardHeight / 2)
		a.mu.Unlock()
		target += (a.rng.Float64()*2 - 1) * errRange
	} else {
		// Ball moving away: drift toward board center instead of tracking,
		// with the same bounded cadence.
		target = BoardHeight / 2
	}

	a.mistake = IntentStop
	a.forceFreeze = false
	roll := a.rng.Float64()
	switch {
	case roll < a.prof.Mistake/2:
		a.forceFreeze = true
	case roll < a.prof.Mistake:
		a.mistake = IntentUp // sentinel: flip whatever direction is chosen
	}

	a.pendingTarget = clamp(target, PaddleHeight/2, BoardHeight-PaddleHeight/2)
	a.pendingApplyAt = now.Add(a.prof.Reaction)
	a.hasPending = true
}

// adapt rubber-bands accuracy from score swings: conceding a few points in
// a row tightens play, converting a few loosens it.
func (a *AIController) adapt(snap Snapshot) {
	ownScore, oppScore := snap.RightScore, snap.LeftScore
	lastOwn, lastOpp := a.lastRight, a.lastLeft
	if a.side == SideLeft {
		ownScore, oppScore = snap.LeftScore, snap.RightScore
		lastOwn, lastOpp = a.lastLeft, a.lastRight
	}

	if oppScore > lastOpp {
		a.concedes++
		a.conversions = 0
	} else if ownScore > lastOwn {
		a.conversions++
		a.concedes = 0
	}
	a.lastLeft, a.lastRight = snap.LeftScore, snap.RightScore

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.concedes >= aiAdaptStreak {
		a.accuracy = math.Min(a.accuracy+aiAdaptStep, aiMaxAccuracy)
		a.concedes = 0
	}
	if a.conversions >= aiAdaptStreak {
		a.accuracy = math.Max(a.accuracy-aiAdaptStep, aiMinAccuracy)
		a.conversions = 0
	}
}

// Accuracy returns the current (possibly adapted) accuracy.
func (a *AIController) Accuracy() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accuracy
}

// Reaction returns the configured reaction delay.
func (a *AIController) Reaction() time.Duration {
	return a.prof.Reaction
}

// PredictArrivalY extrapolates the ball's y at targetX along its current
// velocity, reflecting off the top and bottom walls as many times as needed.
// This is mirror reflection over a 2*height period, not a re-simulation.
func PredictArrivalY(ballX, ballY, vx, vy, targetX, height float64) float64 {
	if vx == 0 {
		return ballY
	}
	t := (targetX - ballX) / vx
	if t < 0 {
		return ballY
	}
	y := ballY + vy*t

	period := 2 * height
	y = math.Mod(y, period)
	if y < 0 {
		y += period
	}
	if y > height {
		y = period - y
	}
	return y
}

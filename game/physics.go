package game

import (
	"math"
	"math/rand"
)

// Board and movement constants. Dimensions are in pixels, speeds in
// pixels/second, so Step works with a real dt instead of per-frame units.
const (
	BoardWidth   = 800.0
	BoardHeight  = 600.0
	PaddleWidth  = 12.0
	PaddleHeight = 90.0
	PaddleMargin = 20.0
	PaddleSpeed  = 420.0
	BallRadius   = 8.0

	BallBaseSpeed = 360.0
	MaxBallSpeed  = 850.0
	SpeedupFactor = 1.05
	// Max deflection off a paddle edge, in radians (~50 degrees).
	MaxBounceAngle = 0.9

	// Seconds between a point and the next serve.
	ServeDelay = 1.2
)

// Phase is the match control state. It is the single source of truth;
// the legacy started/paused/reset booleans are derived at the wire
// boundary only (see Snapshot).
type Phase string

const (
	PhaseReady    Phase = "ready"
	PhasePlaying  Phase = "playing"
	PhasePaused   Phase = "paused"
	PhaseFinished Phase = "finished"
)

// ControlEvent is a client-driven phase transition request.
type ControlEvent string

const (
	ControlStart ControlEvent = "start"
	ControlPause ControlEvent = "pause"
	ControlReset ControlEvent = "reset"
)

// Intent is the desired paddle direction: -1 up, 0 stop, 1 down.
// Last write wins; consumed on every physics tick.
type Intent int

const (
	IntentUp   Intent = -1
	IntentStop Intent = 0
	IntentDown Intent = 1
)

// State is the authoritative match state. It is owned by exactly one Room
// and mutated only by Step and ApplyControl under the Room's lock.
type State struct {
	BallX  float64
	BallY  float64
	BallVX float64
	BallVY float64

	LeftY  float64
	RightY float64

	LeftScore  int
	RightScore int

	Phase Phase

	// Serve bookkeeping: while serveIn > 0 the ball sits centered with zero
	// velocity and is served toward serveDir once the delay elapses.
	serveIn  float64
	serveDir float64
}

// NewState returns a reset state in PhaseReady with a pending first serve.
// The serve direction itself comes from the rng passed to Step, keeping
// replays reproducible for a fixed seed.
func NewState() *State {
	s := &State{}
	s.resetPositions()
	s.Phase = PhaseReady
	return s
}

func (s *State) resetPositions() {
	s.LeftY = (BoardHeight - PaddleHeight) / 2
	s.RightY = (BoardHeight - PaddleHeight) / 2
	s.centerBall(0)
}

// centerBall parks the ball mid-board with zero velocity and schedules a
// serve toward dir (-1 left, 1 right, 0 = random side on serve).
func (s *State) centerBall(dir float64) {
	s.BallX = BoardWidth / 2
	s.BallY = BoardHeight / 2
	s.BallVX = 0
	s.BallVY = 0
	s.serveIn = ServeDelay
	s.serveDir = dir
}

// ApplyControl advances the phase machine. The transition table is total:
// every (phase, event) pair yields a defined next phase, so no control
// message is ever silently ignored.
func (s *State) ApplyControl(ev ControlEvent) Phase {
	switch ev {
	case ControlStart:
		switch s.Phase {
		case PhaseReady, PhasePaused:
			s.Phase = PhasePlaying
		case PhasePlaying, PhaseFinished:
			// Defined no-ops: starting a running match or a finished one
			// leaves the phase unchanged.
		}
	case ControlPause:
		switch s.Phase {
		case PhasePlaying:
			s.Phase = PhasePaused
		case PhaseReady, PhasePaused, PhaseFinished:
		}
	case ControlReset:
		// Reset is valid from every phase: scores and positions cleared.
		s.LeftScore = 0
		s.RightScore = 0
		s.resetPositions()
		s.Phase = PhaseReady
	}
	return s.Phase
}

// Finish marks the match terminal. Set by the Room when the win threshold
// is reached or a player forfeits, never by the step function itself.
func (s *State) Finish() {
	s.Phase = PhaseFinished
	s.BallVX = 0
	s.BallVY = 0
}

// Step advances the simulation by dt seconds. Deterministic for a given
// input sequence and rng; the rng is only consulted for serve angles.
// Scoring is reported through the return values so the caller can emit
// events without re-diffing state.
func (s *State) Step(left, right Intent, dt float64, rng *rand.Rand) (scoredLeft, scoredRight bool) {
	if s.Phase != PhasePlaying {
		return false, false
	}

	s.LeftY = clamp(s.LeftY+float64(left)*PaddleSpeed*dt, 0, BoardHeight-PaddleHeight)
	s.RightY = clamp(s.RightY+float64(right)*PaddleSpeed*dt, 0, BoardHeight-PaddleHeight)

	if s.serveIn > 0 {
		s.serveIn -= dt
		if s.serveIn <= 0 {
			s.serve(rng)
		}
		return false, false
	}

	s.BallX += s.BallVX * dt
	s.BallY += s.BallVY * dt

	// Wall bounce (top/bottom).
	if s.BallY-BallRadius < 0 {
		s.BallY = BallRadius
		s.BallVY = -s.BallVY
	}
	if s.BallY+BallRadius > BoardHeight {
		s.BallY = BoardHeight - BallRadius
		s.BallVY = -s.BallVY
	}

	// Paddle collisions. The contact offset drives the return angle so a
	// hit off the paddle edge comes back steep instead of mirrored.
	leftX := PaddleMargin + PaddleWidth
	rightX := BoardWidth - PaddleMargin - PaddleWidth

	if s.BallVX < 0 && s.BallX-BallRadius <= leftX {
		if s.BallY >= s.LeftY && s.BallY <= s.LeftY+PaddleHeight {
			s.BallX = leftX + BallRadius
			s.bounceOffPaddle(s.LeftY)
		}
	}
	if s.BallVX > 0 && s.BallX+BallRadius >= rightX {
		if s.BallY >= s.RightY && s.BallY <= s.RightY+PaddleHeight {
			s.BallX = rightX - BallRadius
			s.bounceOffPaddle(s.RightY)
		}
	}

	// Scoring: the ball re-centers with zero velocity and re-serves toward
	// the side that just lost the point.
	if s.BallX+BallRadius < 0 {
		s.RightScore++
		s.centerBall(-1)
		return false, true
	}
	if s.BallX-BallRadius > BoardWidth {
		s.LeftScore++
		s.centerBall(1)
		return true, false
	}

	return false, false
}

func (s *State) serve(rng *rand.Rand) {
	dir := s.serveDir
	if dir == 0 {
		dir = 1
		if rng.Intn(2) == 0 {
			dir = -1
		}
	}
	angle := (rng.Float64()*0.8 - 0.4) // -0.4..0.4 radians
	s.BallVX = dir * BallBaseSpeed
	s.BallVY = math.Tan(angle) * BallBaseSpeed
	s.serveIn = 0
	s.serveDir = 0
}

func (s *State) bounceOffPaddle(paddleY float64) {
	rel := (s.BallY - (paddleY + PaddleHeight/2)) / (PaddleHeight / 2)
	rel = clamp(rel, -1, 1)

	speed := math.Hypot(s.BallVX, s.BallVY)
	speed = clamp(speed*SpeedupFactor, BallBaseSpeed, MaxBallSpeed)

	angle := rel * MaxBounceAngle
	dir := -1.0
	if s.BallVX < 0 {
		dir = 1.0
	}
	s.BallVX = dir * math.Abs(speed*math.Cos(angle))
	s.BallVY = speed * math.Sin(angle)
}

// Snapshot is the wire representation of the match state. The legacy
// control booleans are derived from Phase here and nowhere else.
type Snapshot struct {
	BallX      float64 `json:"ball_x"`
	BallY      float64 `json:"ball_y"`
	BallVX     float64 `json:"ball_vx"`
	BallVY     float64 `json:"ball_vy"`
	LeftY      float64 `json:"left_y"`
	RightY     float64 `json:"right_y"`
	LeftScore  int     `json:"left_score"`
	RightScore int     `json:"right_score"`
	Phase      Phase   `json:"phase"`
	IsStarted  bool    `json:"is_started"`
	IsPaused   bool    `json:"is_paused"`
	IsReset    bool    `json:"is_reset"`
}

// Snapshot returns a copy of the state for broadcasting.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		BallX:      s.BallX,
		BallY:      s.BallY,
		BallVX:     s.BallVX,
		BallVY:     s.BallVY,
		LeftY:      s.LeftY,
		RightY:     s.RightY,
		LeftScore:  s.LeftScore,
		RightScore: s.RightScore,
		Phase:      s.Phase,
		IsStarted:  s.Phase == PhasePlaying,
		IsPaused:   s.Phase == PhasePaused,
		IsReset:    s.Phase == PhaseReady,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package game

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyControlTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  Phase
		event ControlEvent
		want  Phase
	}{
		{"start from ready", PhaseReady, ControlStart, PhasePlaying},
		{"start from paused", PhasePaused, ControlStart, PhasePlaying},
		{"start while playing is a no-op", PhasePlaying, ControlStart, PhasePlaying},
		{"start after finish is a no-op", PhaseFinished, ControlStart, PhaseFinished},
		{"pause while playing", PhasePlaying, ControlPause, PhasePaused},
		{"pause while ready is a no-op", PhaseReady, ControlPause, PhaseReady},
		{"pause while paused is a no-op", PhasePaused, ControlPause, PhasePaused},
		{"pause after finish is a no-op", PhaseFinished, ControlPause, PhaseFinished},
		{"reset from playing", PhasePlaying, ControlReset, PhaseReady},
		{"reset from paused", PhasePaused, ControlReset, PhaseReady},
		{"reset from finished", PhaseFinished, ControlReset, PhaseReady},
		{"reset from ready", PhaseReady, ControlReset, PhaseReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.Phase = tt.from
			got := s.ApplyControl(tt.event)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, s.Phase)
		})
	}
}

func TestResetClearsScoresAndPositions(t *testing.T) {
	s := NewState()
	s.Phase = PhasePlaying
	s.LeftScore, s.RightScore = 7, 3
	s.LeftY, s.RightY = 0, BoardHeight-PaddleHeight

	s.ApplyControl(ControlReset)

	assert.Equal(t, PhaseReady, s.Phase)
	assert.Zero(t, s.LeftScore)
	assert.Zero(t, s.RightScore)
	assert.Equal(t, (BoardHeight-PaddleHeight)/2, s.LeftY)
	assert.Equal(t, (BoardHeight-PaddleHeight)/2, s.RightY)
	assert.Zero(t, s.BallVX)
	assert.Zero(t, s.BallVY)
}

func TestStepIgnoredOutsidePlaying(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, phase := range []Phase{PhaseReady, PhasePaused, PhaseFinished} {
		s := NewState()
		s.Phase = phase
		before := *s
		scoredL, scoredR := s.Step(IntentDown, IntentUp, 0.016, rng)
		assert.False(t, scoredL)
		assert.False(t, scoredR)
		assert.Equal(t, before, *s, "state must not move in phase %s", phase)
	}
}

func TestPaddlesStayOnBoard(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewState()
	s.ApplyControl(ControlStart)

	// Hold both paddles against opposite edges for far longer than the
	// board is tall.
	for i := 0; i < 600; i++ {
		s.Step(IntentUp, IntentDown, 0.016, rng)
		require.GreaterOrEqual(t, s.LeftY, 0.0)
		require.LessOrEqual(t, s.LeftY, BoardHeight-PaddleHeight)
		require.GreaterOrEqual(t, s.RightY, 0.0)
		require.LessOrEqual(t, s.RightY, BoardHeight-PaddleHeight)
	}
	assert.Equal(t, 0.0, s.LeftY)
	assert.Equal(t, BoardHeight-PaddleHeight, s.RightY)
}

func TestServeWaitsForDelay(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewState()
	s.ApplyControl(ControlStart)

	s.Step(IntentStop, IntentStop, ServeDelay/2, rng)
	assert.Zero(t, s.BallVX, "ball must not move before the serve delay elapses")

	s.Step(IntentStop, IntentStop, ServeDelay, rng)
	assert.NotZero(t, s.BallVX)
	assert.Equal(t, BallBaseSpeed, math.Abs(s.BallVX))
}

func TestWallBounceReflectsBall(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewState()
	s.ApplyControl(ControlStart)
	s.Step(IntentStop, IntentStop, ServeDelay+0.01, rng) // trigger serve

	s.BallX = BoardWidth / 2
	s.BallY = BallRadius + 1
	s.BallVX = 100
	s.BallVY = -300

	s.Step(IntentStop, IntentStop, 0.05, rng)
	assert.Greater(t, s.BallVY, 0.0, "vertical velocity must flip off the top wall")
	assert.GreaterOrEqual(t, s.BallY, BallRadius)
}

func TestPaddleBounceSpeedsUpWithCap(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewState()
	s.ApplyControl(ControlStart)
	s.Step(IntentStop, IntentStop, ServeDelay+0.01, rng)

	rightX := BoardWidth - PaddleMargin - PaddleWidth

	// Moderate-speed hit into the middle of the right paddle.
	s.RightY = 300 - PaddleHeight/2
	s.BallX = rightX - BallRadius - 1
	s.BallY = 300
	s.BallVX = 400
	s.BallVY = 0
	s.Step(IntentStop, IntentStop, 0.01, rng)
	require.Less(t, s.BallVX, 0.0, "ball must come back off the paddle")
	speed := math.Hypot(s.BallVX, s.BallVY)
	assert.InDelta(t, 400*SpeedupFactor, speed, 1)

	// A hit already near the cap must not exceed it.
	s.BallX = rightX - BallRadius - 1
	s.BallY = 300
	s.BallVX = MaxBallSpeed - 10
	s.BallVY = 0
	s.Step(IntentStop, IntentStop, 0.01, rng)
	speed = math.Hypot(s.BallVX, s.BallVY)
	assert.LessOrEqual(t, speed, MaxBallSpeed+1e-9)
}

func TestEdgeHitComesBackSteep(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewState()
	s.ApplyControl(ControlStart)
	s.Step(IntentStop, IntentStop, ServeDelay+0.01, rng)

	rightX := BoardWidth - PaddleMargin - PaddleWidth
	s.RightY = 300
	s.BallX = rightX - BallRadius - 1
	s.BallY = 300 + PaddleHeight - 2 // near the bottom edge
	s.BallVX = 400
	s.BallVY = 0

	s.Step(IntentStop, IntentStop, 0.01, rng)
	require.Less(t, s.BallVX, 0.0)
	assert.Greater(t, s.BallVY, 0.0, "bottom-edge contact must deflect downward")
	assert.Greater(t, math.Abs(s.BallVY), math.Abs(s.BallVX)*math.Tan(MaxBounceAngle)/2,
		"edge contact should return steeper than a center hit")
}

func TestScoringRecentersAndServesTowardLoser(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewState()
	s.ApplyControl(ControlStart)
	s.Step(IntentStop, IntentStop, ServeDelay+0.01, rng)

	// Ball exits past the left edge: right scores.
	s.BallX = BallRadius
	s.BallY = 50 // outside the left paddle
	s.LeftY = 400
	s.BallVX = -600
	s.BallVY = 0

	scoredL, scoredR := s.Step(IntentStop, IntentStop, 0.1, rng)
	assert.False(t, scoredL)
	assert.True(t, scoredR)
	assert.Equal(t, 1, s.RightScore)
	assert.Equal(t, BoardWidth/2, s.BallX)
	assert.Equal(t, BoardHeight/2, s.BallY)
	assert.Zero(t, s.BallVX, "ball must sit still until the next serve")

	// The next serve goes toward the side that conceded.
	s.Step(IntentStop, IntentStop, ServeDelay+0.01, rng)
	assert.Less(t, s.BallVX, 0.0)
}

func TestSnapshotDerivesControlFlags(t *testing.T) {
	tests := []struct {
		phase   Phase
		started bool
		paused  bool
		reset   bool
	}{
		{PhaseReady, false, false, true},
		{PhasePlaying, true, false, false},
		{PhasePaused, false, true, false},
		{PhaseFinished, false, false, false},
	}
	for _, tt := range tests {
		s := NewState()
		s.Phase = tt.phase
		snap := s.Snapshot()
		assert.Equal(t, tt.started, snap.IsStarted, "phase %s", tt.phase)
		assert.Equal(t, tt.paused, snap.IsPaused, "phase %s", tt.phase)
		assert.Equal(t, tt.reset, snap.IsReset, "phase %s", tt.phase)
	}
}

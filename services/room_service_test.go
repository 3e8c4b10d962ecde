package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-match-server/game"
)

func TestAllocateRetriesPastCodeCollisions(t *testing.T) {
	rooms := game.NewManager()
	svc := NewRoomService(rooms, 11, time.Second)

	taken, created := rooms.GetOrCreate("dup", game.Options{})
	require.True(t, created)
	t.Cleanup(func() { rooms.Remove("dup"); rooms.Remove("fresh") })

	codes := []string{"dup", "dup", "fresh"}
	svc.newCode = func() string {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code
	}

	key, room := svc.allocate(11)
	assert.Equal(t, "fresh", key)
	require.NotSame(t, taken, room, "a collision must never hand out someone else's room")
	assert.Equal(t, 2, rooms.Count())
}

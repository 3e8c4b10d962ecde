package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsSingletonPerKey(t *testing.T) {
	m := NewManager()

	const workers = 32
	rooms := make([]*Room, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i], _ = m.GetOrCreate("same-key", Options{})
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		require.Same(t, rooms[0], rooms[i], "two callers observed different rooms for one key")
	}
	assert.Equal(t, 1, m.Count())
	m.Remove("same-key")
}

func TestGetOrCreateReportsCreation(t *testing.T) {
	m := NewManager()
	defer m.Remove("k")

	_, created := m.GetOrCreate("k", Options{})
	assert.True(t, created)
	_, created = m.GetOrCreate("k", Options{})
	assert.False(t, created)
}

func TestGetUnknownKeyFails(t *testing.T) {
	m := NewManager()
	_, err := m.Get("nope")
	assert.Error(t, err)
}

func TestRemoveTearsDownRoom(t *testing.T) {
	m := NewManager()
	room, _ := m.GetOrCreate("k", Options{})
	room.Join("p1", "Alice", SideSpectator)

	m.Remove("k")

	_, err := m.Get("k")
	assert.Error(t, err)
	_, err = room.Join("p2", "Bob", SideSpectator)
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestReapDropsOnlyIdleRooms(t *testing.T) {
	m := NewManager()

	m.GetOrCreate("empty", Options{})
	occupied, _ := m.GetOrCreate("occupied", Options{})
	occupied.Join("p1", "Alice", SideSpectator)
	defer m.Remove("occupied")

	time.Sleep(5 * time.Millisecond)
	reaped := m.Reap(time.Millisecond)

	assert.Equal(t, 1, reaped)
	assert.Equal(t, 1, m.Count())
	_, err := m.Get("occupied")
	assert.NoError(t, err)
}

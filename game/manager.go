package game

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Manager owns the canonical room table. It is the only cross-room shared
// state in the system; every create, lookup and remove goes through its
// single lock so exactly one room instance can ever exist per key.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewManager() *Manager {
	return &Manager{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for key, creating it on first use. Two
// concurrent calls with the same key always observe the same instance;
// a second creation request returns the existing room, never a twin.
func (m *Manager) GetOrCreate(key string, opts Options) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[key]; ok {
		return room, false
	}
	room := NewRoom(key, opts)
	m.rooms[key] = room
	return room, true
}

// Get looks up an existing room.
func (m *Manager) Get(key string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[key]
	if !ok {
		return nil, fmt.Errorf("room %s not found", key)
	}
	return room, nil
}

// Remove drops the room from the table and tears it down. Stop runs
// outside the table lock: room teardown waits on the room's own tick
// goroutine and must not stall unrelated lookups.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	room, ok := m.rooms[key]
	if ok {
		delete(m.rooms, key)
	}
	m.mu.Unlock()

	if ok {
		room.Stop()
	}
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Reap removes rooms that have been empty or finished for longer than the
// idle window. Invoked periodically by the scheduler.
func (m *Manager) Reap(window time.Duration) int {
	m.mu.Lock()
	var stale []string
	for key, room := range m.rooms {
		if room.Idle(window) {
			stale = append(stale, key)
		}
	}
	m.mu.Unlock()

	for _, key := range stale {
		log.Printf("[Rooms] reaping idle room %s", key)
		m.Remove(key)
	}
	return len(stale)
}

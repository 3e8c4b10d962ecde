// Package ws is the session gateway: it owns one logical session per
// WebSocket connection, translates wire events into room calls and fans
// room events back out to every subscribed connection.
package ws

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"game-match-server/game"
)

const (
	sendBuffer   = 256
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second

	// Room keys created by the tournament service carry this prefix; the
	// gateway never auto-creates them for a stale key — the client gets a
	// room_not_found and is expected to re-fetch its current match.
	TournamentKeyPrefix = "match:"
)

// Gateway routes connections to rooms. One pump goroutine per live room
// drains the room's event channel and broadcasts to subscribers, so no
// room state transition ever blocks on network I/O.
type Gateway struct {
	Rooms *game.Manager

	AdHocWinScore int
	ForfeitGrace  time.Duration

	mu     sync.Mutex
	subs   map[string]map[*session]bool // roomKey -> sessions
	pumped map[string]bool              // roomKey -> pump running
}

// session is the per-connection state: which room, which identity.
type session struct {
	conn     *websocket.Conn
	send     chan []byte
	roomKey  string
	playerID string
	joined   bool
}

func NewGateway(rooms *game.Manager, adHocWinScore int, forfeitGrace time.Duration) *Gateway {
	return &Gateway{
		Rooms:         rooms,
		AdHocWinScore: adHocWinScore,
		ForfeitGrace:  forfeitGrace,
		subs:          make(map[string]map[*session]bool),
		pumped:        make(map[string]bool),
	}
}

// Handle runs a connection's read loop; registered with websocket.New in
// the route table. The user identity stamped by the auth middleware (if
// any) travels on the connection's locals.
func (g *Gateway) Handle(conn *websocket.Conn) {
	s := &session{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if uid, ok := conn.Locals("user_id").(string); ok && uid != "" {
		s.playerID = uid
	}

	go g.writePump(s)
	defer g.disconnect(s)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		g.dispatch(s, raw)
	}
}

func (g *Gateway) writePump(s *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect delegates to the room's grace-timer leave semantics: a playing
// seat is marked absent, not forfeited, and a reconnect within the window
// re-attaches the same player id.
func (g *Gateway) disconnect(s *session) {
	if s.joined {
		if room, err := g.Rooms.Get(s.roomKey); err == nil {
			room.Leave(s.playerID)
		}
		g.unsubscribe(s)
	}
	close(s.send)
	s.conn.Close()
}

func (g *Gateway) dispatch(s *session, raw []byte) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		g.reply(s, errorFrame("protocol_error", err.Error()))
		return
	}

	switch env.Type {
	case MsgJoinRoom:
		g.handleJoin(s, env.Data)
	case MsgPlayerReady:
		var data ReadyData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			g.reply(s, errorFrame("protocol_error", "invalid player_ready payload"))
			return
		}
		g.withRoom(s, func(room *game.Room) error {
			return room.SetReady(s.playerID, data.Ready)
		})
	case MsgPaddleIntent:
		var data IntentData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			g.reply(s, errorFrame("protocol_error", "invalid paddle_intent payload"))
			return
		}
		g.withRoom(s, func(room *game.Room) error {
			return room.SetIntent(s.playerID, game.Intent(data.Direction))
		})
	case MsgStartGame:
		g.withRoom(s, func(room *game.Room) error {
			return room.HandleControl(s.playerID, game.ControlStart)
		})
	case MsgPauseGame:
		g.withRoom(s, func(room *game.Room) error {
			return room.HandleControl(s.playerID, game.ControlPause)
		})
	case MsgResetGame:
		g.withRoom(s, func(room *game.Room) error {
			return room.HandleControl(s.playerID, game.ControlReset)
		})
	case MsgLeaveRoom:
		g.withRoom(s, func(room *game.Room) error {
			room.Leave(s.playerID)
			return nil
		})
		g.unsubscribe(s)
		s.joined = false
	}
}

func (g *Gateway) handleJoin(s *session, raw json.RawMessage) {
	var data JoinRoomData
	if err := json.Unmarshal(raw, &data); err != nil {
		g.reply(s, errorFrame("protocol_error", "invalid join_room payload"))
		return
	}
	if data.RoomKey == "" {
		g.reply(s, errorFrame("protocol_error", "join_room requires room_key"))
		return
	}

	// Switching rooms detaches from the current one first, otherwise the
	// old seat stays occupied forever and the stale subscription would let
	// the old room's pump write into a channel closed on disconnect.
	if s.joined && s.roomKey != data.RoomKey {
		if room, err := g.Rooms.Get(s.roomKey); err == nil {
			room.Leave(s.playerID)
		}
		g.unsubscribe(s)
		s.joined = false
	}

	// Guests pick their own stable id so a reconnect maps back to the same
	// seat; authenticated connections always use the stamped identity.
	if s.playerID == "" {
		s.playerID = data.PlayerID
	}
	if s.playerID == "" {
		s.playerID = "guest:" + uuid.NewString()
	}
	name := data.DisplayName
	if name == "" {
		name = s.playerID
	}

	room, err := g.Rooms.Get(data.RoomKey)
	if err != nil {
		if strings.HasPrefix(data.RoomKey, TournamentKeyPrefix) {
			g.reply(s, errorFrame("room_not_found", "no such match room; re-fetch your current match"))
			return
		}
		room, _ = g.Rooms.GetOrCreate(data.RoomKey, game.Options{
			WinScore:     g.AdHocWinScore,
			ForfeitGrace: g.ForfeitGrace,
		})
	}

	want := game.SideSpectator
	if data.Side != nil {
		want = game.Side(*data.Side)
	}
	side, err := room.Join(s.playerID, name, want)
	if err != nil {
		g.reply(s, errorFrame("join_failed", err.Error()))
		return
	}

	if data.VsAI && side != game.SideSpectator {
		difficulty := game.Difficulty(data.Difficulty)
		if _, err := room.AttachAI(difficulty); err != nil && err != game.ErrSeatsTaken {
			log.Printf("[WS] attach AI to %s: %v", room.Key, err)
		}
	}

	s.roomKey = data.RoomKey
	s.joined = true
	g.subscribe(s)

	g.reply(s, Outbound{Type: EvConnected, Data: map[string]any{
		"room_key":  room.Key,
		"player_id": s.playerID,
		"side":      side,
		"room":      room.Info(),
	}})
}

func (g *Gateway) withRoom(s *session, fn func(*game.Room) error) {
	if !s.joined {
		g.reply(s, errorFrame("room_not_found", "join a room first"))
		return
	}
	room, err := g.Rooms.Get(s.roomKey)
	if err != nil {
		g.reply(s, errorFrame("room_not_found", err.Error()))
		return
	}
	if err := fn(room); err != nil {
		g.reply(s, errorFrame(errorCode(err), err.Error()))
	}
}

func errorCode(err error) string {
	switch err {
	case game.ErrNotAPlayer:
		return "not_a_player"
	case game.ErrNotInRoom:
		return "not_in_room"
	case game.ErrBadIntent, game.ErrMatchFinished:
		return "rejected"
	case game.ErrRoomClosed:
		return "room_closed"
	default:
		return "rejected"
	}
}

func (g *Gateway) reply(s *session, out Outbound) {
	b, err := json.Marshal(out)
	if err != nil {
		return
	}
	select {
	case s.send <- b:
	default:
	}
}

// subscribe registers the session for room broadcasts and lazily starts
// the room's event pump.
func (g *Gateway) subscribe(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.subs[s.roomKey] == nil {
		g.subs[s.roomKey] = make(map[*session]bool)
	}
	g.subs[s.roomKey][s] = true

	if !g.pumped[s.roomKey] {
		if room, err := g.Rooms.Get(s.roomKey); err == nil {
			g.pumped[s.roomKey] = true
			go g.pump(s.roomKey, room)
		}
	}
}

func (g *Gateway) unsubscribe(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if set, ok := g.subs[s.roomKey]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(g.subs, s.roomKey)
		}
	}
}

// pump drains one room's event channel until the room is torn down,
// marshalling each event once and fanning it out. A subscriber with a full
// send buffer misses the frame rather than stalling everyone else.
func (g *Gateway) pump(roomKey string, room *game.Room) {
	for ev := range room.Events() {
		b, err := json.Marshal(Outbound{Type: ev.Type, Data: ev.Data})
		if err != nil {
			continue
		}

		g.mu.Lock()
		for s := range g.subs[roomKey] {
			select {
			case s.send <- b:
			default:
			}
		}
		g.mu.Unlock()
	}

	g.mu.Lock()
	delete(g.pumped, roomKey)
	g.mu.Unlock()
}

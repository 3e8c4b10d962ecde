package services

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"game-match-server/game"
	"game-match-server/utils"
)

// RoomService exposes ad-hoc (non-tournament) rooms over HTTP: create a
// room with a shareable join code, look one up before connecting.
type RoomService struct {
	Rooms        *game.Manager
	WinScore     int
	ForfeitGrace time.Duration

	newCode func() string
}

func NewRoomService(rooms *game.Manager, winScore int, forfeitGrace time.Duration) *RoomService {
	return &RoomService{
		Rooms:        rooms,
		WinScore:     winScore,
		ForfeitGrace: forfeitGrace,
		newCode:      utils.GenerateJoinCode,
	}
}

// allocate mints join codes until one lands on a fresh room. A collision
// must never hand the caller someone else's live room as "their" new one.
func (s *RoomService) allocate(winScore int) (string, *game.Room) {
	for {
		key := s.newCode()
		room, created := s.Rooms.GetOrCreate(key, game.Options{
			WinScore:     winScore,
			ForfeitGrace: s.ForfeitGrace,
		})
		if created {
			return key, room
		}
	}
}

type createRoomRequest struct {
	WinScore int `json:"win_score,omitempty"`
}

func (s *RoomService) CreateRoom(c *fiber.Ctx) error {
	var req createRoomRequest
	_ = c.BodyParser(&req)
	winScore := req.WinScore
	if winScore <= 0 {
		winScore = s.WinScore
	}

	key, room := s.allocate(winScore)
	log.Printf("[Rooms] ad-hoc room %s created", key)
	return c.Status(201).JSON(fiber.Map{"room_key": key, "room": room.Info()})
}

func (s *RoomService) GetRoom(c *fiber.Ctx) error {
	room, err := s.Rooms.Get(c.Params("key"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "room not found"})
	}
	return c.JSON(room.Info())
}

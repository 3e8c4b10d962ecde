package handlers

import (
	"game-match-server/middleware"
	"game-match-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// 🔓 Public routes: browsing and guest registration
	app.Get("/tournaments", tournamentService.GetAllTournaments)
	app.Get("/tournaments/:id", tournamentService.GetTournamentByID)
	app.Get("/tournaments/:id/participants", tournamentService.GetParticipants)
	app.Get("/tournaments/:id/matches", tournamentService.GetMatches)
	app.Get("/tournaments/:id/matches/current", tournamentService.GetCurrentMatch)
	app.Get("/tournaments/:id/matches/next", tournamentService.GetNextMatch)
	app.Get("/tournaments/:id/brackets", tournamentService.GetBrackets)
	app.Get("/tournaments/:id/stats", tournamentService.GetStats)
	app.Post("/tournaments/:id/join", middleware.UserContextMiddleware(), tournamentService.JoinTournament)

	// 🔐 Authenticated routes
	secured := app.Group("/s", middleware.UserContextMiddleware())
	secured.Post("/tournaments", tournamentService.CreateTournament)
	secured.Post("/tournaments/:id/start", tournamentService.StartTournament)
	secured.Post("/tournaments/:id/cancel", tournamentService.CancelTournament)
	secured.Post("/matches/:match_id/result", tournamentService.ReportResult)
}

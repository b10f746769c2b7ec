// Package httpapi serves the leaderboard over HTTP.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRoutes(b Board) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Post("/leaderboard", SaveScore(b))
	r.Get("/leaderboard/{period}", TopScores(b))
	r.Get("/leaderboard/{period}/rank", PlayerRank(b))
	return r
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/leaderboard"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Board is implemented by leaderboard.Board.
type Board interface {
	Save(ctx context.Context, e leaderboard.Entry) (leaderboard.Entry, error)
	Top(ctx context.Context, p leaderboard.Period, limit int) ([]leaderboard.Entry, error)
	Rank(ctx context.Context, p leaderboard.Period, score int) (int64, error)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Error writing response")
	}
}

func period(w http.ResponseWriter, r *http.Request) (leaderboard.Period, bool) {
	p, err := leaderboard.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return p, true
}

func TopScores(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := period(w, r)
		if !ok {
			return
		}
		limit := DefaultLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}

		entries, err := b.Top(r.Context(), p, limit)
		if err != nil {
			log.Error().Err(err).Str("period", string(p)).Msg("Error getting top scores")
			http.Error(w, "failed to get scores", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Period  leaderboard.Period  `json:"period"`
			Entries []leaderboard.Entry `json:"entries"`
		}{p, entries})
	}
}

func PlayerRank(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := period(w, r)
		if !ok {
			return
		}
		score, err := strconv.Atoi(r.URL.Query().Get("score"))
		if err != nil {
			http.Error(w, "invalid score", http.StatusBadRequest)
			return
		}

		rank, err := b.Rank(r.Context(), p, score)
		if err != nil {
			log.Error().Err(err).Str("period", string(p)).Msg("Error getting rank")
			http.Error(w, "failed to get rank", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Period leaderboard.Period `json:"period"`
			Score  int                `json:"score"`
			Rank   int64              `json:"rank"`
		}{p, score, rank})
	}
}

var errInvalidEntry = errors.New("invalid entry")

func validEntry(e leaderboard.Entry) error {
	if e.PlayerName == "" || e.Score < 0 || e.Floor < 0 {
		return errInvalidEntry
	}
	return nil
}

func SaveScore(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e leaderboard.Entry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validEntry(e); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		saved, err := b.Save(r.Context(), e)
		if err != nil {
			log.Error().Err(err).Msg("Error saving score")
			http.Error(w, "failed to save score", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

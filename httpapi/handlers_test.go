package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedAllam0/icy-tower-online/leaderboard"
)

func newServer(t *testing.T) (*httptest.Server, *leaderboard.Board) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	b := leaderboard.New(rdb)
	srv := httptest.NewServer(SetupRoutes(b))
	t.Cleanup(srv.Close)
	return srv, b
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestSaveThenTop(t *testing.T) {
	srv, _ := newServer(t)

	for _, body := range []string{
		`{"playerName":"ann","score":120,"floor":12,"character":1}`,
		`{"playerName":"bob","score":300,"floor":30,"character":0,"gameMode":"speed"}`,
	} {
		res, err := http.Post(srv.URL+"/leaderboard", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		var saved leaderboard.Entry
		require.NoError(t, json.NewDecoder(res.Body).Decode(&saved))
		res.Body.Close()
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		assert.NotEmpty(t, saved.ID)
		assert.NotZero(t, saved.Timestamp)
	}

	res, err := http.Get(srv.URL + "/leaderboard/daily?limit=1")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Period  string              `json:"period"`
		Entries []leaderboard.Entry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "daily", body.Period)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "bob", body.Entries[0].PlayerName)
	assert.Equal(t, "speed", body.Entries[0].GameMode)
}

func TestRank(t *testing.T) {
	srv, b := newServer(t)
	for _, score := range []int{100, 200} {
		_, err := b.Save(context.Background(), leaderboard.Entry{PlayerName: "p", Score: score})
		require.NoError(t, err)
	}

	res, err := http.Get(srv.URL + "/leaderboard/allTime/rank?score=150")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Rank int64 `json:"rank"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, int64(2), body.Rank)
}

func TestBadRequests(t *testing.T) {
	srv, _ := newServer(t)

	tests := []struct {
		name, method, path, body string
	}{
		{"unknown period", http.MethodGet, "/leaderboard/monthly", ""},
		{"unknown period rank", http.MethodGet, "/leaderboard/monthly/rank?score=1", ""},
		{"bad limit", http.MethodGet, "/leaderboard/daily?limit=abc", ""},
		{"zero limit", http.MethodGet, "/leaderboard/daily?limit=0", ""},
		{"missing score", http.MethodGet, "/leaderboard/daily/rank", ""},
		{"bad json", http.MethodPost, "/leaderboard", "{"},
		{"no name", http.MethodPost, "/leaderboard", `{"score":1}`},
		{"negative score", http.MethodPost, "/leaderboard", `{"playerName":"x","score":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			res, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			res.Body.Close()
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		})
	}
}

type failingBoard struct{}

func (failingBoard) Save(context.Context, leaderboard.Entry) (leaderboard.Entry, error) {
	return leaderboard.Entry{}, errors.New("down")
}

func (failingBoard) Top(context.Context, leaderboard.Period, int) ([]leaderboard.Entry, error) {
	return nil, errors.New("down")
}

func (failingBoard) Rank(context.Context, leaderboard.Period, int) (int64, error) {
	return 0, errors.New("down")
}

func TestBoardErrors(t *testing.T) {
	h := SetupRoutes(failingBoard{})

	for _, tt := range []struct{ method, path, body string }{
		{http.MethodGet, "/leaderboard/weekly", ""},
		{http.MethodGet, "/leaderboard/weekly/rank?score=3", ""},
		{http.MethodPost, "/leaderboard", `{"playerName":"x","score":1}`},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tt.path)
	}
}

type limitBoard struct {
	failingBoard
	got int
}

func (l *limitBoard) Top(_ context.Context, _ leaderboard.Period, limit int) ([]leaderboard.Entry, error) {
	l.got = limit
	return []leaderboard.Entry{}, nil
}

func TestTopScores_Limits(t *testing.T) {
	b := &limitBoard{}
	h := SetupRoutes(b)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard/allTime", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultLimit, b.got)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard/allTime?limit=5000", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MaxLimit, b.got)
}

package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

type scoreService struct {
	mu     sync.Mutex
	awards map[string]int
	failID string
}

func (s *scoreService) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/users/score", func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if req.UserID == s.failID {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		s.awards[req.UserID] += req.ScorePoints
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/team/status", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("teamId") != "red" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"teamName": "Red Rockets"})
	})
	return r
}

func TestPlacementPoints(t *testing.T) {
	assert.Equal(t, 100, PlacementPoints(1))
	assert.Equal(t, 50, PlacementPoints(2))
	assert.Equal(t, 25, PlacementPoints(3))
	assert.Equal(t, 10, PlacementPoints(4))
	assert.Equal(t, 10, PlacementPoints(5))
}

func TestClient_AwardRankings(t *testing.T) {
	svc := &scoreService{awards: map[string]int{}, failID: "broken"}
	srv := httptest.NewServer(svc.routes())
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0, zap.NewNop())
	rankings := []wire.Ranking{
		{Rank: 1, TeamID: "A", Score: 12},
		{Rank: 2, TeamID: "AI-r1", Score: 30, IsBot: true},
		{Rank: 3, TeamID: "B", Score: 4},
	}
	members := map[string][]string{
		"A": {"alice", "andy"},
		"B": {"bob", "broken"},
	}

	err := c.AwardRankings(context.Background(), "r1", rankings, members)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	assert.Equal(t, map[string]int{"alice": 112, "andy": 112, "bob": 29}, svc.awards)
}

func TestClient_TeamName(t *testing.T) {
	svc := &scoreService{awards: map[string]int{}}
	srv := httptest.NewServer(svc.routes())
	defer srv.Close()

	c := NewClient(srv.URL, 0, nil)
	name, err := c.TeamName(context.Background(), "red")
	require.NoError(t, err)
	assert.Equal(t, "Red Rockets", name)

	_, err = c.TeamName(context.Background(), "blue")
	require.Error(t, err)
}

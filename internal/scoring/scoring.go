package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/glitch-battleship/internal/metrics"
	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

const DefaultTimeout = 5 * time.Second

// PlacementPoints is what a member earns for finishing at rank, before the
// team's in-game score is added.
func PlacementPoints(rank int) int {
	switch rank {
	case 1:
		return 100
	case 2:
		return 50
	case 3:
		return 25
	default:
		return 10
	}
}

// Client talks to the platform's user/score/team service.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		log:  log.Named("scoring"),
	}
}

type scoreRequest struct {
	UserID      string `json:"userId"`
	ScorePoints int    `json:"scorePoints"`
}

// AwardRankings credits every human member of each ranked team. Bots are
// skipped. Every member is attempted; failures are combined into one error.
func (c *Client) AwardRankings(ctx context.Context, roomID string, rankings []wire.Ranking, members map[string][]string) error {
	var errs error
	for _, r := range rankings {
		if r.IsBot {
			continue
		}
		points := PlacementPoints(r.Rank) + r.Score
		for _, userID := range members[r.TeamID] {
			err := c.postScore(ctx, scoreRequest{UserID: userID, ScorePoints: points})
			metrics.RecordScoreAward(err == nil)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("team %s user %s: %w", r.TeamID, userID, err))
				continue
			}
			c.log.Debug("score awarded",
				zap.String("room_id", roomID),
				zap.String("team_id", r.TeamID),
				zap.String("user_id", userID),
				zap.Int("points", points))
		}
	}
	return errs
}

func (c *Client) postScore(ctx context.Context, body scoreRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/users/score", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("score service returned %d", resp.StatusCode)
	}
	return nil
}

// TeamName looks up a team's display name.
func (c *Client) TeamName(ctx context.Context, teamID string) (string, error) {
	u := c.base + "/api/team/status?teamId=" + url.QueryEscape(teamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("team service returned %d", resp.StatusCode)
	}

	var out struct {
		TeamName string `json:"teamName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode team status: %w", err)
	}
	return out.TeamName, nil
}

// Noop is used when no score service is configured.
type Noop struct{}

func (Noop) AwardRankings(context.Context, string, []wire.Ranking, map[string][]string) error {
	return nil
}

func (Noop) TeamName(context.Context, string) (string, error) { return "", nil }

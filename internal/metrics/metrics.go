package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values are bounded: finish reasons, attack outcomes and error codes
// are fixed sets. Room and team ids are never used as labels.
var (
	roomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battle_rooms_created_total",
		Help: "Rooms created through join or the admin API",
	})

	gamesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battle_games_started_total",
		Help: "Rooms that moved from waiting to active",
	})

	gamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_games_finished_total",
		Help: "Finished games by reason",
	}, []string{"reason"})

	attacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_attacks_total",
		Help: "Resolved attacks by outcome",
	}, []string{"result", "phase"})

	aiMoves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_ai_moves_total",
		Help: "AI think timer fires, split into applied and stale",
	}, []string{"outcome"})

	rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_rejected_actions_total",
		Help: "Player actions rejected by validation",
	}, []string{"code"})

	slowConnsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battle_slow_connections_dropped_total",
		Help: "Subscribers dropped because their outbound buffer was full",
	})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "battle_websocket_connections_active",
		Help: "Currently open websocket sessions",
	})

	applyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "battle_apply_duration_seconds",
		Help:    "Time spent applying one command to a room",
		Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}, []string{"command"})

	scoreAwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_score_awards_total",
		Help: "Calls to the score service by outcome",
	}, []string{"outcome"})
)

func RecordRoomCreated() { roomsCreated.Inc() }

func RecordGameStarted() { gamesStarted.Inc() }

func RecordGameFinished(reason string) { gamesFinished.WithLabelValues(reason).Inc() }

func RecordAttack(result string, phase int) {
	attacks.WithLabelValues(result, phaseLabel(phase)).Inc()
}

func RecordAIMove(stale bool) {
	if stale {
		aiMoves.WithLabelValues("stale").Inc()
		return
	}
	aiMoves.WithLabelValues("applied").Inc()
}

func RecordRejected(code string) { rejected.WithLabelValues(code).Inc() }

func RecordSlowConnDropped() { slowConnsDropped.Inc() }

func ConnectionOpened() { wsConnectionsActive.Inc() }

func ConnectionClosed() { wsConnectionsActive.Dec() }

func ObserveApply(command string, d time.Duration) {
	applyLatency.WithLabelValues(command).Observe(d.Seconds())
}

func RecordScoreAward(ok bool) {
	if ok {
		scoreAwards.WithLabelValues("ok").Inc()
		return
	}
	scoreAwards.WithLabelValues("failed").Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func phaseLabel(phase int) string {
	switch phase {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	case 4:
		return "4"
	case 5:
		return "5"
	}
	return "unknown"
}

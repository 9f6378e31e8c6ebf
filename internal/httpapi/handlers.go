package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/glitch-battleship/internal/engine"
	"github.com/DoyleJ11/glitch-battleship/internal/hub"
	"github.com/DoyleJ11/glitch-battleship/internal/room"
	"github.com/DoyleJ11/glitch-battleship/internal/types"
	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

// GlitchControl is the admin view of the process-wide glitch override.
type GlitchControl interface {
	Current(ctx context.Context) (engine.Phase, bool)
	Set(ctx context.Context, phase engine.Phase) error
	Clear(ctx context.Context) error
}

type handlers struct {
	hub    *hub.Hub
	glitch GlitchControl
	log    *zap.Logger
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.hub.List(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}

	summaries := make([]wire.RoomUpdate, 0, len(rooms))
	for _, rm := range rooms {
		s, err := rm.Summary(r.Context())
		if err != nil {
			if errors.Is(err, room.ErrClosed) {
				continue
			}
			writeError(w, http.StatusServiceUnavailable, "room unavailable")
			return
		}
		summaries = append(summaries, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": summaries})
}

func (h *handlers) createRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RoomID *string `json:"roomId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var id string
	if body.RoomID != nil {
		id = types.CleanID(*body.RoomID)
		if id == "" {
			writeError(w, http.StatusBadRequest, "roomId is required")
			return
		}
	} else {
		code, err := h.freshCode(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate room id")
			return
		}
		id = code
	}

	rm, created, err := h.hub.Ensure(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	summary, err := rm.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "room unavailable")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.Info("room created by admin", zap.String("room_id", id))
	}
	writeJSON(w, status, map[string]any{"ok": true, "room": summary})
}

func (h *handlers) freshCode(ctx context.Context) (string, error) {
	for {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}
		rm, err := h.hub.Get(ctx, code)
		if err != nil {
			return "", err
		}
		if rm == nil {
			return code, nil
		}
		h.log.Debug("collision on code, regenerating")
	}
}

func (h *handlers) startRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.roomParam(w, r)
	if !ok {
		return
	}
	switch err := rm.Start(r.Context()); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case errors.Is(err, engine.ErrRoomNotReady):
		writeError(w, http.StatusConflict, "room not ready to start")
	default:
		h.log.Error("admin start failed", zap.String("room_id", rm.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "start failed")
	}
}

func (h *handlers) stopRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.roomParam(w, r)
	if !ok {
		return
	}
	if err := rm.Stop(r.Context()); err != nil {
		h.log.Error("admin stop failed", zap.String("room_id", rm.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stop failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handlers) roomParam(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	rm, err := h.hub.Get(r.Context(), types.CleanID(chi.URLParam(r, "roomId")))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return nil, false
	}
	if rm == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return nil, false
	}
	return rm, true
}

type phaseOption struct {
	Phase int    `json:"phase"`
	Name  string `json:"name"`
}

func (h *handlers) getGlitch(w http.ResponseWriter, r *http.Request) {
	phase, overridden := h.glitch.Current(r.Context())

	options := make([]phaseOption, 0, len(engine.Phases))
	for _, p := range engine.Phases {
		options = append(options, phaseOption{Phase: int(p), Name: p.String()})
	}
	resp := map[string]any{
		"phase":           int(phase),
		"overridden":      overridden,
		"availablePhases": options,
	}
	if overridden {
		resp["name"] = phase.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) setGlitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phase int `json:"phase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	phase := engine.Phase(body.Phase)
	if !phase.Valid() {
		writeError(w, http.StatusBadRequest, "phase must be between 1 and 5")
		return
	}
	if err := h.glitch.Set(r.Context(), phase); err != nil {
		h.log.Error("set glitch override failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save override")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "phase": int(phase), "name": phase.String()})
}

func (h *handlers) clearGlitch(w http.ResponseWriter, r *http.Request) {
	if err := h.glitch.Clear(r.Context()); err != nil {
		h.log.Error("clear glitch override failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not clear override")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rayz-device/control"
	"rayz-device/device"
	"rayz-device/game"
	"rayz-device/peerlink"
)

// DeviceHandler serves device state and configuration over REST.
type DeviceHandler struct {
	state *game.State
	link  *peerlink.Link
	ctrl  *control.Server
	dev   *device.Device
	now   func() uint32
}

func NewDeviceHandler(state *game.State, link *peerlink.Link, ctrl *control.Server, dev *device.Device, now func() uint32) *DeviceHandler {
	return &DeviceHandler{state: state, link: link, ctrl: ctrl, dev: dev, now: now}
}

// Routes registers the device endpoints on the given router.
func (h *DeviceHandler) Routes(r chi.Router) {
	r.Get("/status", h.getStatus)
	r.Get("/config", h.getConfig)
	r.Put("/config", h.putConfig)
	r.Get("/identity", h.getIdentity)
	r.Put("/identity", h.putIdentity)
	r.Get("/peers", h.getPeers)
	r.Post("/peers", h.postPeer)
	r.Delete("/peers", h.deletePeers)
	r.Post("/fire", h.postFire)
	r.Post("/reload", h.postReload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusResponse aggregates the device snapshot with transport counters.
type statusResponse struct {
	UptimeMs uint32              `json:"uptime_ms"`
	Identity game.DeviceIdentity `json:"identity"`
	Config   game.GameConfig     `json:"config"`
	Runtime  game.RuntimeState   `json:"runtime"`
	Phase    string              `json:"phase"`
	Link     peerlink.Stats      `json:"link"`
	Clients  int                 `json:"clients"`
}

func (h *DeviceHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		UptimeMs: h.now(),
		Identity: snap.Identity,
		Config:   snap.Config,
		Runtime:  snap.Runtime,
		Phase:    snap.Runtime.Phase.String(),
		Link:     h.link.Stats(),
		Clients:  h.ctrl.Count(),
	})
}

func (h *DeviceHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Config())
}

// putConfig replaces the tunables. Out-of-range values are clamped, not
// rejected; the stored result is echoed back.
func (h *DeviceHandler) putConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.state.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config payload")
		return
	}
	stored, clamped := h.state.ApplyConfig(cfg)
	h.ctrl.BroadcastStatus(clamped)
	writeJSON(w, http.StatusOK, struct {
		Config  game.GameConfig `json:"config"`
		Clamped bool            `json:"clamped"`
	}{stored, clamped})
}

func (h *DeviceHandler) getIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Identity())
}

func (h *DeviceHandler) putIdentity(w http.ResponseWriter, r *http.Request) {
	id := h.state.Identity()
	if err := json.NewDecoder(r.Body).Decode(&id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity payload")
		return
	}
	if err := h.state.SetIdentity(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist identity")
		return
	}
	h.ctrl.BroadcastStatus(false)
	writeJSON(w, http.StatusOK, h.state.Identity())
}

func (h *DeviceHandler) getPeers(w http.ResponseWriter, r *http.Request) {
	peers := h.link.Peers()
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"peers": out, "count": len(out)})
}

func (h *DeviceHandler) postPeer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Addr string `json:"addr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid peer payload")
		return
	}
	addr, err := peerlink.ParseAddr(body.Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed peer address")
		return
	}
	if err := h.link.AddPeer(addr); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"addr": addr.String()})
}

func (h *DeviceHandler) deletePeers(w http.ResponseWriter, r *http.Request) {
	h.link.ClearPeers()
	writeJSON(w, http.StatusOK, map[string]int{"count": 0})
}

// postFire stands in for the hardware trigger during simulation.
func (h *DeviceHandler) postFire(w http.ResponseWriter, r *http.Request) {
	if !h.dev.Fire() {
		writeError(w, http.StatusConflict, "shot blocked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shots": h.state.Runtime().ShotsFired,
		"ammo":  h.state.Runtime().AmmoRemaining,
	})
}

// postReload stands in for the hardware reload button.
func (h *DeviceHandler) postReload(w http.ResponseWriter, r *http.Request) {
	if !h.dev.Reload() {
		writeError(w, http.StatusConflict, "reload blocked")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reloading"})
}

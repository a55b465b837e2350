// Package api exposes a small REST surface next to the websocket control
// plane, for tooling that wants device state without holding a socket open.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"rayz-device/control"
	"rayz-device/device"
	"rayz-device/game"
	"rayz-device/peerlink"
)

// NewRouter builds the /api router with middlewares and routes.
func NewRouter(state *game.State, link *peerlink.Link, ctrl *control.Server, dev *device.Device, now func() uint32) chi.Router {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	h := NewDeviceHandler(state, link, ctrl, dev, now)
	r.Route("/v1", func(sub chi.Router) {
		// Health
		sub.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		h.Routes(sub)
	})

	return r
}

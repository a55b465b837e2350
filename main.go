package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"rayz-device/api"
	"rayz-device/config"
	"rayz-device/control"
	"rayz-device/device"
	"rayz-device/game"
	"rayz-device/peerlink"
	"rayz-device/store"
)

// netBootstrap reports readiness once the listener is bound.
type netBootstrap struct {
	ready atomic.Bool
	addr  atomic.Value // string
}

func (b *netBootstrap) Ready() bool { return b.ready.Load() }

func (b *netBootstrap) Address() string {
	if v, ok := b.addr.Load().(string); ok {
		return v
	}
	return ""
}

func (b *netBootstrap) markReady(addr string) {
	b.addr.Store(addr)
	b.ready.Store(true)
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("main: loaded environment from .env")
	}
	cfg := config.Load()

	// Persistent identity store
	st, err := store.OpenFile(cfg.StorePath)
	if err != nil {
		log.Fatalf("main: opening store %s: %v", cfg.StorePath, err)
	}

	state := game.NewState(game.ParseRole(cfg.Role), st)
	id := state.Identity()
	log.Printf("main: device %q role=%s device_id=%d player_id=%d",
		id.DeviceName, id.Role, id.DeviceID, id.PlayerID)

	// Peer transport. The UDP driver stands in for the radio; one datagram
	// per frame, peers addressed by hardware address.
	local := peerlink.Addr{0x02, 0, 0, 0, 0, id.DeviceID}
	drv, err := peerlink.NewUDPDriver(local, cfg.RadioAddr)
	if err != nil {
		log.Fatalf("main: binding radio transport on %s: %v", cfg.RadioAddr, err)
	}
	for _, route := range strings.Split(cfg.PeerRoutes, ",") {
		route = strings.TrimSpace(route)
		if route == "" {
			continue
		}
		parts := strings.SplitN(route, "=", 2)
		if len(parts) != 2 {
			log.Printf("main: skipping malformed peer route %q", route)
			continue
		}
		addr, err := peerlink.ParseAddr(parts[0])
		if err != nil {
			log.Printf("main: skipping peer route with bad address %q", parts[0])
			continue
		}
		if err := drv.AddRoute(addr, parts[1]); err != nil {
			log.Printf("main: skipping peer route %q: %v", route, err)
		}
	}

	link, err := peerlink.New(drv, cfg.RadioChannel)
	if err != nil {
		log.Fatalf("main: bringing up peer link: %v", err)
	}
	defer link.Close()
	if cfg.PeerList != "" {
		if err := link.LoadPeersFromList(cfg.PeerList); err != nil {
			log.Printf("main: peer list: %v", err)
		}
	}

	started := time.Now()
	now := func() uint32 { return uint32(time.Since(started).Milliseconds()) }

	boot := &netBootstrap{}
	ctrl := control.NewServer(state, boot, now)
	dev := device.New(state, link, ctrl, now)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go ctrl.Run(ctx)
	go dev.Run(ctx)

	r := chi.NewRouter()
	r.Mount("/api", api.NewRouter(state, link, ctrl, dev, now))
	r.HandleFunc("/ws", ctrl.HandleWS)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatalf("main: listen on %s: %v", cfg.ListenAddr, err)
	}
	boot.markReady(ln.Addr().String())
	log.Printf("main: serving on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: serve: %v", err)
	}
}

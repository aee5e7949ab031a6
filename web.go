/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const timeout time.Duration = 10 * time.Second

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, _ := io.WriteString(w, newPage("kintrace", "kintrace — 家譜推理遊戲"))

		logger.Debug("served home page",
			zap.String("size", humanReadableSize(int64(written))),
			zap.String("client", realIP(r)))
	}
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, _ := w.Write([]byte("kintrace v" + releaseVersion + "\n"))

		logger.Debug("served version page",
			zap.String("size", humanReadableSize(int64(written))),
			zap.String("client", realIP(r)))
	}
}

func serveHealthCheck(cfg *Config, g *gameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		_, _ = w.Write([]byte("OK, " + strconv.Itoa(g.rooms.Len()) + " active rooms\n"))
	}
}

func serveRobots(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}
}

// serveRoomStatus lets the join page check a room code before opening a
// websocket.
func serveRoomStatus(cfg *Config, g *gameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		securityHeaders(cfg, w)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		room, ok := g.rooms.Get(strings.ToUpper(ps.ByName("roomid")))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "房間不存在"})
			return
		}

		room.mu.Lock()
		status := map[string]any{
			"roomId":      room.RoomID,
			"roomName":    room.RoomName,
			"status":      room.Status,
			"isLocked":    room.Locked,
			"playerCount": len(room.players),
		}
		room.mu.Unlock()

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}

// serveRoomQR renders the share link for a room as a PNG QR code.
func serveRoomQR(cfg *Config, g *gameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := strings.ToUpper(ps.ByName("roomid"))
		if _, ok := g.rooms.Get(roomID); !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		const qrSize = 320
		png, err := qrcode.Encode(cfg.shareBase()+"/room/"+roomID, qrcode.Medium, qrSize)
		if err != nil {
			logger.Error("qr generation failed", zap.Error(err))
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)

		logger.Debug("served room qr",
			zap.String("room", roomID),
			zap.String("size", humanReadableSize(int64(len(png)))),
			zap.String("client", realIP(r)))
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logger.Info("starting kintrace", zap.String("version", releaseVersion))

	game := newGameServer(cfg)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go game.rooms.sweepLoop(sweepCtx, cfg.sweepInterval)

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		// Websocket connections outlive any sane write timeout; the
		// pumps manage their own lifetimes.
		WriteTimeout: 0,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logger.Error("handler panicked",
			zap.String("path", r.URL.Path),
			zap.Any("panic", i))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))
	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, game))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg))
	mux.GET(cfg.prefix+"/room/:roomid", serveHomePage(cfg))
	mux.GET(cfg.prefix+"/room/:roomid/qr", serveRoomQR(cfg, game))
	mux.GET(cfg.prefix+"/api/room/:roomid/status", serveRoomStatus(cfg, game))
	mux.GET(cfg.prefix+"/ws", serveWS(game))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	go func() {
		logger.Info("listening",
			zap.String("url", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/"))

		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}

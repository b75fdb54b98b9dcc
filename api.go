/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	pathpkg "path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	maxBodyBytes = 4096
	qrSize       = 320 // mobile-friendly size

	playerIDHeader     = "X-Player-Id"
	playerSecretHeader = "X-Player-Secret"
)

type createRoomRequest struct {
	Stake      int `json:"stake"`
	MaxPlayers int `json:"maxPlayers"`
}

type createRoomResponse struct {
	RoomToken string `json:"roomToken"`
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

type joinResponse struct {
	PlayerID     string `json:"playerId"`
	PlayerSecret string `json:"playerSecret"`
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

type actionRequest struct {
	Type ActionType `json:"type"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error) {
	kind, status := errorKind(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"path":   r.URL.Path,
			"remote": realIP(r),
			"error":  err,
		}).Error("request failed")
		msg = "internal server error"
	}

	writeJSON(cfg, w, status, errorResponse{Error: msg, Kind: kind})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return validationf("invalid request body: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return validationf("invalid request body: trailing data")
	}

	return nil
}

func credentialsFrom(r *http.Request) Credentials {
	return Credentials{
		PlayerID: r.Header.Get(playerIDHeader),
		Secret:   r.Header.Get(playerSecretHeader),
	}
}

// roomHandler resolves :token and hands the request to fn.
func roomHandler(cfg *Config, rm *RoomManager, fn func(w http.ResponseWriter, r *http.Request, token string) error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token, err := normalizeToken(ps.ByName("token"))
		if err == nil {
			err = fn(w, r, token)
		}
		if err != nil {
			writeError(cfg, w, r, err)
		}
	}
}

func serveCreateRoom(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createRoomRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		token, err := rm.Create(r.Context(), req.Stake, req.MaxPlayers)
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		logf(cfg, "SERVE: Created room %s for %s", token, realIP(r))

		writeJSON(cfg, w, http.StatusCreated, createRoomResponse{RoomToken: token})
	}
}

func serveJoin(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		var req joinRequest
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}

		var creds Credentials
		err := rm.withRoom(token, func(room *Room) error {
			var err error
			creds, err = room.Join(r.Context(), req.Nickname)
			return err
		})
		if err != nil {
			return err
		}

		logf(cfg, "SERVE: Player %q joined %s from %s", req.Nickname, token, realIP(r))

		writeJSON(cfg, w, http.StatusOK, joinResponse{PlayerID: creds.PlayerID, PlayerSecret: creds.Secret})
		return nil
	})
}

func serveReady(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		var ready bool
		err := rm.withRoom(token, func(room *Room) error {
			var err error
			ready, err = room.ToggleReady(r.Context(), credentialsFrom(r))
			return err
		})
		if err != nil {
			return err
		}

		writeJSON(cfg, w, http.StatusOK, readyResponse{Ready: ready})
		return nil
	})
}

func serveStart(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		err := rm.withRoom(token, func(room *Room) error {
			return room.Start(r.Context(), credentialsFrom(r))
		})
		if err != nil {
			return err
		}

		logf(cfg, "SERVE: Started game in %s", token)

		writeJSON(cfg, w, http.StatusOK, successResponse{Success: true})
		return nil
	})
}

func serveAction(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		var req actionRequest
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}

		err := rm.withRoom(token, func(room *Room) error {
			return room.Action(r.Context(), credentialsFrom(r), req.Type)
		})
		if err != nil {
			return err
		}

		writeJSON(cfg, w, http.StatusOK, successResponse{Success: true})
		return nil
	})
}

func serveState(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		var state PublicState
		err := rm.withRoom(token, func(room *Room) error {
			var err error
			state, err = room.GetState(r.Context())
			return err
		})
		if err != nil {
			return err
		}

		writeJSON(cfg, w, http.StatusOK, state)
		return nil
	})
}

func serveHistory(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		var events []Event
		err := rm.withRoom(token, func(room *Room) error {
			var err error
			events, err = room.History(r.Context())
			return err
		})
		if err != nil {
			return err
		}

		writeJSON(cfg, w, http.StatusOK, events)
		return nil
	})
}

// serveWS upgrades to a push-only channel. Credentials travel as query
// parameters because browsers cannot set headers on a WebSocket handshake.
func serveWS(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		err := rm.withRoom(token, func(room *Room) error {
			_, err := room.GetState(r.Context())
			return err
		})
		if err != nil {
			return err
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"room":   token,
				"remote": realIP(r),
				"error":  err,
			}).Warn("websocket upgrade failed")
			return nil
		}

		client := newClient(conn)
		q := r.URL.Query()
		creds := Credentials{PlayerID: q.Get("playerId"), Secret: q.Get("playerSecret")}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var room *Room
		err = rm.withRoom(token, func(rr *Room) error {
			room = rr
			return rr.Connect(ctx, client, creds)
		})
		if err != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.TextMessage, encodeError(err.Error()))
			_ = conn.Close()
			return nil
		}

		logf(cfg, "SERVE: WebSocket %s connected to %s from %s", client.id, token, realIP(r))

		go client.writePump()
		client.readPump(room)

		logf(cfg, "SERVE: WebSocket %s disconnected from %s", client.id, token)

		return nil
	})
}

// serveQR renders the room's address as a PNG so other players can scan it.
func serveQR(cfg *Config, rm *RoomManager) httprouter.Handle {
	return roomHandler(cfg, rm, func(w http.ResponseWriter, r *http.Request, token string) error {
		err := rm.withRoom(token, func(room *Room) error {
			_, err := room.GetState(r.Context())
			return err
		})
		if err != nil {
			return err
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		roomPath := pathpkg.Dir(strings.TrimSuffix(r.URL.Path, "/qr")) + "/" + token

		png, err := qrcode.Encode(scheme+"://"+r.Host+roomPath, qrcode.Medium, qrSize)
		if err != nil {
			return err
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
		return nil
	})
}

// registerRoomAPI sets up:
//   - POST $path                  → create a room
//   - GET  $path/:token           → public state
//   - POST $path/:token/join      → join the lobby
//   - POST $path/:token/ready     → toggle ready
//   - POST $path/:token/start     → host starts the game
//   - POST $path/:token/action    → roll, stay or leave
//   - GET  $path/:token/history   → recent events
//   - GET  $path/:token/ws        → state updates over WebSocket
//   - GET  $path/:token/qr        → PNG QR code for the room
func registerRoomAPI(cfg *Config, path string, mux *httprouter.Router, rm *RoomManager) {
	path = cfg.prefix + path

	mux.POST(path, serveCreateRoom(cfg, rm))
	mux.GET(path+"/:token", serveState(cfg, rm))
	mux.POST(path+"/:token/join", serveJoin(cfg, rm))
	mux.POST(path+"/:token/ready", serveReady(cfg, rm))
	mux.POST(path+"/:token/start", serveStart(cfg, rm))
	mux.POST(path+"/:token/action", serveAction(cfg, rm))
	mux.GET(path+"/:token/history", serveHistory(cfg, rm))
	mux.GET(path+"/:token/ws", serveWS(cfg, rm))
	mux.GET(path+"/:token/qr", serveQR(cfg, rm))
}

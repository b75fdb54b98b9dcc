/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer   = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxReadBytes = 512
)

// Messages sent to clients
type StateUpdateMessage struct {
	Type  string      `json:"type"` // "STATE_UPDATE"
	State PublicState `json:"state"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "ERROR"
	Message string `json:"message"`
}

func encodeStateUpdate(ps PublicState) ([]byte, error) {
	return json.Marshal(StateUpdateMessage{Type: "STATE_UPDATE", State: ps})
}

func encodeError(msg string) []byte {
	data, _ := json.Marshal(ErrorMessage{Type: "ERROR", Message: msg})
	return data
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

type session struct {
	client   *Client
	playerID string // empty for observers
}

// sessionRegistry maps connection ids to the player they authenticated as.
// It belongs to one room goroutine and is not safe for concurrent use.
type sessionRegistry struct {
	room     string
	sessions map[string]session
}

func newSessionRegistry(room string) *sessionRegistry {
	return &sessionRegistry{
		room:     room,
		sessions: make(map[string]session),
	}
}

func (r *sessionRegistry) add(c *Client, playerID string) {
	r.sessions[c.id] = session{client: c, playerID: playerID}
}

// remove closes the client's send channel, which stops its write pump.
func (r *sessionRegistry) remove(connID string) (string, bool) {
	s, ok := r.sessions[connID]
	if !ok {
		return "", false
	}

	delete(r.sessions, connID)
	close(s.client.send)

	return s.playerID, true
}

func (r *sessionRegistry) connections(playerID string) int {
	n := 0
	for _, s := range r.sessions {
		if s.playerID == playerID {
			n++
		}
	}
	return n
}

func (r *sessionRegistry) len() int { return len(r.sessions) }

// deliver never blocks. A client whose buffer is full misses this message.
func (r *sessionRegistry) deliver(c *Client, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		logger.WithFields(logrus.Fields{
			"room": r.room,
			"conn": c.id,
		}).Warn("send buffer full, dropped message")
		return false
	}
}

func (r *sessionRegistry) broadcast(msg []byte) {
	for _, s := range r.sessions {
		r.deliver(s.client, msg)
	}
}

func (r *sessionRegistry) closeAll() {
	for id := range r.sessions {
		r.remove(id)
	}
}

func (c *Client) readPump(room *Room) {
	defer func() {
		room.Disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The channel is push-only; inbound frames are read just to notice closure.
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

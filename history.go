/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"time"
)

const historyCapacity = 100

type EventType string

const (
	EventRoomCreated        EventType = "ROOM_CREATED"
	EventPlayerJoined       EventType = "PLAYER_JOINED"
	EventReadyToggled       EventType = "READY_TOGGLED"
	EventGameStarted        EventType = "GAME_STARTED"
	EventCaptainRolled      EventType = "CAPTAIN_ROLLED"
	EventDecision           EventType = "DECISION"
	EventRoundResolved      EventType = "ROUND_RESOLVED"
	EventGameFinished       EventType = "GAME_FINISHED"
	EventPlayerConnected    EventType = "PLAYER_CONNECTED"
	EventPlayerDisconnected EventType = "PLAYER_DISCONNECTED"
)

type Event struct {
	Type      EventType `json:"type"`
	PlayerID  string    `json:"playerId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// eventLog is a fixed-capacity ring buffer. Once full, each new event
// overwrites the oldest one, so it always holds the most recent entries.
type eventLog struct {
	buf   []Event
	start int
	n     int
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{buf: make([]Event, capacity)}
}

func (l *eventLog) add(typ EventType, playerID, detail string) {
	l.push(Event{
		Type:      typ,
		PlayerID:  playerID,
		Detail:    detail,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (l *eventLog) push(e Event) {
	if len(l.buf) == 0 {
		return
	}

	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = e
		l.n++
		return
	}

	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// entries returns the events oldest first.
func (l *eventLog) entries() []Event {
	out := make([]Event, 0, l.n)
	for i := 0; i < l.n; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

func (l *eventLog) len() int { return l.n }

func (l *eventLog) clone() *eventLog {
	c := &eventLog{buf: make([]Event, len(l.buf)), start: l.start, n: l.n}
	copy(c.buf, l.buf)
	return c
}

func (l *eventLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.entries())
}

func (l *eventLog) UnmarshalJSON(data []byte) error {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}

	*l = *newEventLog(historyCapacity)
	for _, e := range events {
		l.push(e)
	}

	return nil
}

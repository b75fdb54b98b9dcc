/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
)

var tokenPattern = regexp.MustCompile(`^[0-9A-F]{8}$`)

// normalizeToken accepts tokens typed in any case.
func normalizeToken(raw string) (string, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if !tokenPattern.MatchString(token) {
		return "", notFoundf("room %s not found", raw)
	}
	return token, nil
}

// RoomManager routes each room token to exactly one Room actor.
type RoomManager struct {
	cfg   *Config
	store Store

	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

func newRoomManager(cfg *Config, store Store) *RoomManager {
	rm := &RoomManager{
		cfg:         cfg,
		store:       store,
		rooms:       make(map[string]*Room),
		idleTimeout: cfg.roomTimeout,
		done:        make(chan struct{}),
	}
	if rm.idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

func (rm *RoomManager) room(token string) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if r, ok := rm.rooms[token]; ok {
		return r
	}

	r := newRoom(rm.cfg, rm.store, token)
	rm.rooms[token] = r
	go r.run()

	return r
}

// withRoom calls fn with the actor for token, retrying once if the reaper
// unloaded that actor in between.
func (rm *RoomManager) withRoom(token string, fn func(r *Room) error) error {
	err := fn(rm.room(token))
	if errors.Is(err, errRoomUnloaded) {
		err = fn(rm.room(token))
	}
	return err
}

// Create makes a room under a fresh token. Tokens are not checked for
// uniqueness up front; a collision is reported as ErrConflict by the store.
func (rm *RoomManager) Create(ctx context.Context, stake, maxPlayers int) (string, error) {
	token := generateRoomToken()

	err := rm.withRoom(token, func(r *Room) error {
		return r.Create(ctx, stake, maxPlayers)
	})
	if err != nil {
		return "", err
	}

	logf(rm.cfg, "ROOMS: Created room %s (stake %d, max %d players)", token, stake, maxPlayers)

	return token, nil
}

// reaperLoop unloads rooms with no sessions that have been idle longer than
// idleTimeout. Their state stays in the store and is reloaded on demand.
func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(max(rm.idleTimeout/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-rm.done:
			return
		case <-ticker.C:
			rm.reap(time.Now().Add(-rm.idleTimeout))
		}
	}
}

// reap retires idle rooms while holding rm.mu, so a caller retrying after
// errRoomUnloaded always finds the token free and gets a fresh actor.
func (rm *RoomManager) reap(cutoff time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	n := 0
	for token, r := range rm.rooms {
		if r.retire(cutoff) {
			delete(rm.rooms, token)
			n++
		}
	}

	if n > 0 {
		logf(rm.cfg, "ROOMS: Unloaded %d idle room(s)", n)
	}

	return n
}

func (rm *RoomManager) Close() {
	rm.closeOnce.Do(func() {
		close(rm.done)

		rm.mu.Lock()
		defer rm.mu.Unlock()

		for token, r := range rm.rooms {
			delete(rm.rooms, token)
			r.stop()
		}
	})
}

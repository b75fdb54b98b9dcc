/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// errRoomUnloaded is returned when a request reaches a room the reaper has
// already stopped. RoomManager retries it on a fresh actor.
var errRoomUnloaded = errors.New("room unloaded")

// Credentials identify a player. Both halves come from Join.
type Credentials struct {
	PlayerID string
	Secret   string
}

func (c Credentials) empty() bool {
	return c.PlayerID == "" && c.Secret == ""
}

type request struct {
	fn   func() error
	done chan error
}

// Room is the single writer for one room's state. Every operation is queued
// onto the run goroutine, so mutations are applied one at a time in arrival
// order. Rooms share nothing, so different rooms proceed in parallel.
type Room struct {
	token string
	cfg   *Config
	store Store
	roll  func() RollResult

	requests chan request
	quit     chan struct{}
	stopOnce sync.Once

	// Owned by the run goroutine.
	state       *RoomState
	sessions    *sessionRegistry
	snapshotMsg []byte
	lastActive  time.Time
	retired     bool

	mu       sync.RWMutex
	snapshot *PublicState
}

func newRoom(cfg *Config, store Store, token string) *Room {
	return &Room{
		token:      token,
		cfg:        cfg,
		store:      store,
		roll:       rollChallenge,
		requests:   make(chan request),
		quit:       make(chan struct{}),
		sessions:   newSessionRegistry(token),
		lastActive: time.Now(),
	}
}

func (r *Room) run() {
	defer r.sessions.closeAll()

	for {
		select {
		case req := <-r.requests:
			select {
			case <-r.quit:
				req.done <- errRoomUnloaded
				return
			default:
			}

			req.done <- req.fn()

			if r.retired {
				r.stop()
				return
			}

		case <-r.quit:
			return
		}
	}
}

func (r *Room) stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// retire stops the room if it has no sessions and has accepted nothing since
// cutoff. The decision is made on the room goroutine, so no request can be
// running at the time. A busy room is skipped rather than waited on. Once
// retired, callers still holding the room get errRoomUnloaded.
func (r *Room) retire(cutoff time.Time) bool {
	idle := false
	req := request{
		fn: func() error {
			if r.sessions.len() == 0 && r.lastActive.Before(cutoff) {
				r.retired = true
				idle = true
			}
			return nil
		},
		done: make(chan error, 1),
	}

	select {
	case r.requests <- req:
	case <-r.quit:
		return true
	default:
		return false
	}

	<-req.done

	return idle
}

// do runs fn on the room goroutine. Once accepted, fn always runs to
// completion even if ctx is cancelled afterwards.
func (r *Room) do(ctx context.Context, fn func() error) error {
	req := request{
		fn: func() error {
			r.lastActive = time.Now()
			return fn()
		},
		done: make(chan error, 1),
	}

	select {
	case r.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return errRoomUnloaded
	}

	return <-req.done
}

// load reads state from the store the first time the room is touched.
// Presence is per-process, so every player starts disconnected.
func (r *Room) load(ctx context.Context) error {
	if r.state != nil {
		return nil
	}

	s, err := r.store.Load(ctx, r.token)
	if err != nil {
		return err
	}
	for i := range s.Players {
		s.Players[i].Connected = false
	}

	r.state = s
	r.cacheSnapshot()

	return nil
}

// apply mutates a copy of the state and commits it only once the store has
// accepted it. Must run on the room goroutine.
func (r *Room) apply(ctx context.Context, fn func(s *RoomState) error) error {
	if err := r.load(ctx); err != nil {
		return err
	}

	next := r.state.clone()
	if err := fn(next); err != nil {
		return err
	}

	if err := r.store.Save(ctx, next); err != nil {
		logger.WithFields(logrus.Fields{
			"room":  r.token,
			"error": err,
		}).Error("failed to persist room state")
		return err
	}

	r.state = next
	r.publish()

	return nil
}

func (r *Room) mutate(ctx context.Context, fn func(s *RoomState) error) error {
	return r.do(ctx, func() error {
		return r.apply(ctx, fn)
	})
}

func (r *Room) cacheSnapshot() {
	ps := r.state.public()

	msg, err := encodeStateUpdate(ps)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"room":  r.token,
			"error": err,
		}).Error("failed to encode state update")
		msg = nil
	}
	r.snapshotMsg = msg

	r.mu.Lock()
	r.snapshot = &ps
	r.mu.Unlock()
}

// publish serializes the projection once and pushes it to every session.
func (r *Room) publish() {
	r.cacheSnapshot()

	if r.snapshotMsg != nil {
		r.sessions.broadcast(r.snapshotMsg)
	}
}

func authenticate(s *RoomState, creds Credentials) (int, error) {
	if creds.PlayerID == "" || creds.Secret == "" {
		return -1, authf("missing player credentials")
	}

	i := s.playerIndex(creds.PlayerID)
	if i < 0 || subtle.ConstantTimeCompare([]byte(s.Players[i].Secret), []byte(creds.Secret)) != 1 {
		return -1, authf("invalid player credentials")
	}

	return i, nil
}

// Create initializes the room. It fails with ErrConflict if the token is
// already taken.
func (r *Room) Create(ctx context.Context, stake, maxPlayers int) error {
	if err := validateStake(stake); err != nil {
		return err
	}
	if err := validateMaxPlayers(maxPlayers); err != nil {
		return err
	}

	return r.do(ctx, func() error {
		s := newRoomState(r.token, stake, maxPlayers, r.cfg.maxSteps, r.cfg.winThreshold)
		s.History.add(EventRoomCreated, "", fmt.Sprintf("stake=%d maxPlayers=%d", stake, maxPlayers))

		if err := r.store.Create(ctx, s); err != nil {
			return err
		}

		r.state = s
		r.publish()

		return nil
	})
}

// Join adds a player to the lobby and returns their credentials. The secret
// is only ever returned here.
func (r *Room) Join(ctx context.Context, nickname string) (Credentials, error) {
	var creds Credentials

	err := r.mutate(ctx, func(s *RoomState) error {
		if s.Status != StatusLobby {
			return statef("game has already started")
		}
		if len(s.Players) >= s.MaxPlayers {
			return conflictf("room is full")
		}

		name, err := validateNickname(nickname, s.Players)
		if err != nil {
			return err
		}

		id, secret := generatePlayerCredentials()
		s.Players = append(s.Players, Player{
			ID:       id,
			Secret:   secret,
			Nickname: name,
			Points:   startingPoints,
		})
		if s.HostID == "" {
			s.HostID = id
		}
		s.History.add(EventPlayerJoined, id, name)

		creds = Credentials{PlayerID: id, Secret: secret}

		return nil
	})
	if err != nil {
		return Credentials{}, err
	}

	return creds, nil
}

func (r *Room) ToggleReady(ctx context.Context, creds Credentials) (bool, error) {
	var ready bool

	err := r.mutate(ctx, func(s *RoomState) error {
		i, err := authenticate(s, creds)
		if err != nil {
			return err
		}
		if s.Status != StatusLobby {
			return statef("ready can only be changed in the lobby")
		}

		s.Players[i].Ready = !s.Players[i].Ready
		ready = s.Players[i].Ready
		s.History.add(EventReadyToggled, s.Players[i].ID, fmt.Sprintf("ready=%t", ready))

		return nil
	})

	return ready, err
}

// Start collects stakes and opens the first round. Only the host may call it.
func (r *Room) Start(ctx context.Context, creds Credentials) error {
	return r.mutate(ctx, func(s *RoomState) error {
		i, err := authenticate(s, creds)
		if err != nil {
			return err
		}
		if s.Players[i].ID != s.HostID {
			return authf("only the host can start the game")
		}
		if s.Status != StatusLobby {
			return statef("game has already started")
		}
		if len(s.Players) < minPlayers {
			return statef("at least %d players are required", minPlayers)
		}
		for _, p := range s.Players {
			if !p.Ready {
				return statef("not all players are ready")
			}
		}

		s.Players, s.Pot = collectStakes(s.Players, s.Stake)
		s.Status = StatusPlaying
		s.Phase = PhaseCaptainTurn
		s.Step = 1
		s.CaptainIndex = 0
		s.Decisions = make(map[string]Decision)
		s.LastRoll = nil
		s.History.add(EventGameStarted, s.Players[i].ID, fmt.Sprintf("pot=%d", s.Pot))

		return nil
	})
}

// Action handles a captain roll or a stay/leave decision.
func (r *Room) Action(ctx context.Context, creds Credentials, typ ActionType) error {
	switch typ {
	case ActionCaptainRoll, ActionStay, ActionLeave:
	default:
		return validationf("unknown action type %q", typ)
	}

	return r.mutate(ctx, func(s *RoomState) error {
		i, err := authenticate(s, creds)
		if err != nil {
			return err
		}
		if s.Status != StatusPlaying {
			return statef("game is not in progress")
		}

		playerID := s.Players[i].ID
		captainID := s.captainID()

		if typ == ActionCaptainRoll {
			if s.Phase != PhaseCaptainTurn {
				return statef("it is not time to roll")
			}
			if playerID != captainID {
				return authf("only the captain can roll")
			}

			roll := r.roll()
			s.LastRoll = &roll
			s.Decisions = map[string]Decision{captainID: DecisionStay}
			s.Phase = PhaseDecisions
			s.History.add(EventCaptainRolled, playerID, fmt.Sprintf("value=%d success=%t", roll.Value, roll.Success))
		} else {
			if s.Phase != PhaseDecisions {
				return statef("decisions are not open")
			}
			if playerID == captainID {
				return authf("the captain cannot stay or leave")
			}
			if _, decided := s.Decisions[playerID]; decided {
				return conflictf("you have already decided this round")
			}

			s.Decisions[playerID] = Decision(typ)
			s.History.add(EventDecision, playerID, string(typ))
		}

		// With no connected non-captain left, this holds right after the roll.
		if allDecisionsMade(s.Players, s.Decisions, captainID) {
			r.resolveAndAdvance(s)
		}

		return nil
	})
}

func (r *Room) resolveAndAdvance(s *RoomState) {
	s.Phase = PhaseResolution

	roll := *s.LastRoll
	s.Players = resolveRound(s.Players, s.Decisions, roll)
	s.History.add(EventRoundResolved, "", fmt.Sprintf("step=%d value=%d success=%t", s.Step, roll.Value, roll.Success))

	if winner, ok := checkWinCondition(s.Players, s.Step, s.MaxSteps, s.WinThreshold); ok {
		s.Players = distributePot(s.Players, winner, s.Pot)
		s.History.add(EventGameFinished, winner, fmt.Sprintf("pot=%d", s.Pot))
		s.Pot = 0
		s.Status = StatusFinished
		s.WinnerID = winner

		logf(r.cfg, "ROOMS: Player %s won %s", winner, r.token)

		return
	}

	s.Step++
	s.CaptainIndex = nextCaptain(s.CaptainIndex, len(s.Players))
	s.Phase = PhaseCaptainTurn
	s.Decisions = make(map[string]Decision)
	s.LastRoll = nil
}

// GetState returns a copy of the public projection. After the first load it
// is served from the cached snapshot without queueing behind mutations.
func (r *Room) GetState(ctx context.Context) (PublicState, error) {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()

	if snap == nil {
		if err := r.do(ctx, func() error { return r.load(ctx) }); err != nil {
			return PublicState{}, err
		}

		r.mu.RLock()
		snap = r.snapshot
		r.mu.RUnlock()
	}

	return snap.clone(), nil
}

func (r *Room) History(ctx context.Context) ([]Event, error) {
	var events []Event

	err := r.do(ctx, func() error {
		if err := r.load(ctx); err != nil {
			return err
		}
		events = r.state.History.entries()
		return nil
	})

	return events, err
}

// Connect registers c with the room. Valid credentials mark that player
// connected; anything else joins as an anonymous observer. The first message
// c receives is always a full snapshot.
func (r *Room) Connect(ctx context.Context, c *Client, creds Credentials) error {
	return r.do(ctx, func() error {
		if err := r.load(ctx); err != nil {
			return err
		}

		idx := -1
		notice := ""
		if !creds.empty() {
			i, err := authenticate(r.state, creds)
			if err != nil {
				notice = "invalid player credentials; connected as an observer"
			} else {
				idx = i
			}
		}

		playerID := ""
		if idx >= 0 {
			playerID = r.state.Players[idx].ID
		}
		r.sessions.add(c, playerID)

		if idx >= 0 && !r.state.Players[idx].Connected {
			next := r.state.clone()
			next.Players[idx].Connected = true
			next.History.add(EventPlayerConnected, playerID, "")

			if err := r.store.Save(ctx, next); err != nil {
				r.sessions.remove(c.id)
				return err
			}

			r.state = next
			r.publish()
		} else if r.snapshotMsg != nil {
			r.sessions.deliver(c, r.snapshotMsg)
		}

		if notice != "" {
			r.sessions.deliver(c, encodeError(notice))
		}

		return nil
	})
}

// Disconnect drops c. When it was the player's last connection they are
// marked offline, which can complete a round that was only waiting on them.
func (r *Room) Disconnect(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := r.do(ctx, func() error {
		playerID, ok := r.sessions.remove(c.id)
		if !ok || playerID == "" || r.sessions.connections(playerID) > 0 {
			return nil
		}

		return r.apply(ctx, func(s *RoomState) error {
			i := s.playerIndex(playerID)
			if i < 0 {
				return nil
			}

			s.Players[i].Connected = false
			s.History.add(EventPlayerDisconnected, playerID, "")

			if s.Status == StatusPlaying && s.Phase == PhaseDecisions &&
				allDecisionsMade(s.Players, s.Decisions, s.captainID()) {
				r.resolveAndAdvance(s)
			}

			return nil
		})
	})
	if err != nil && !errors.Is(err, errRoomUnloaded) {
		logger.WithFields(logrus.Fields{
			"room":  r.token,
			"conn":  c.id,
			"error": err,
		}).Warn("failed to record disconnect")
	}
}

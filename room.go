/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

type Status string

const (
	StatusLobby    Status = "LOBBY"
	StatusPlaying  Status = "PLAYING"
	StatusFinished Status = "FINISHED"
)

type Phase string

const (
	PhaseWaitReady   Phase = "WAIT_READY"
	PhaseCaptainTurn Phase = "CAPTAIN_TURN"
	PhaseDecisions   Phase = "DECISIONS"
	PhaseResolution  Phase = "RESOLUTION"
)

type Decision string

const (
	DecisionStay  Decision = "STAY"
	DecisionLeave Decision = "LEAVE"
)

// ActionType is what a player sends to the action endpoint.
type ActionType string

const (
	ActionCaptainRoll ActionType = "CAPTAIN_ROLL"
	ActionStay        ActionType = "STAY"
	ActionLeave       ActionType = "LEAVE"
)

// Player as stored server-side. Secret never leaves the store.
type Player struct {
	ID        string `json:"id"`
	Secret    string `json:"secret"`
	Nickname  string `json:"nickname"`
	Points    int    `json:"points"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}

type RollResult struct {
	Success   bool  `json:"success"`
	Value     int   `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// RoomState is the persisted aggregate for one room. Only the room actor
// mutates it, and only on a clone.
type RoomState struct {
	RoomToken    string              `json:"roomToken"`
	Status       Status              `json:"status"`
	Stake        int                 `json:"stake"`
	Pot          int                 `json:"pot"`
	MaxPlayers   int                 `json:"maxPlayers"`
	Players      []Player            `json:"players"`
	HostID       string              `json:"hostId"`
	CaptainIndex int                 `json:"captainIndex"`
	Phase        Phase               `json:"phase"`
	Step         int                 `json:"step"`
	MaxSteps     int                 `json:"maxSteps"`
	WinThreshold int                 `json:"winThreshold"`
	LastRoll     *RollResult         `json:"lastRoll"`
	Decisions    map[string]Decision `json:"decisions"`
	History      *eventLog           `json:"history"`
	WinnerID     string              `json:"winnerId"`
}

func newRoomState(token string, stake, maxPlayers, maxSteps, winThreshold int) *RoomState {
	return &RoomState{
		RoomToken:    token,
		Status:       StatusLobby,
		Stake:        stake,
		MaxPlayers:   maxPlayers,
		Players:      []Player{},
		Phase:        PhaseWaitReady,
		MaxSteps:     maxSteps,
		WinThreshold: winThreshold,
		Decisions:    make(map[string]Decision),
		History:      newEventLog(historyCapacity),
	}
}

func (s *RoomState) clone() *RoomState {
	c := *s

	c.Players = make([]Player, len(s.Players))
	copy(c.Players, s.Players)

	c.Decisions = make(map[string]Decision, len(s.Decisions))
	for k, v := range s.Decisions {
		c.Decisions[k] = v
	}

	if s.LastRoll != nil {
		roll := *s.LastRoll
		c.LastRoll = &roll
	}

	c.History = s.History.clone()

	return &c
}

func (s *RoomState) playerIndex(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *RoomState) captainID() string {
	if s.CaptainIndex < 0 || s.CaptainIndex >= len(s.Players) {
		return ""
	}
	return s.Players[s.CaptainIndex].ID
}

type PublicPlayer struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Points    int    `json:"points"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}

// PublicState is what clients see. It has no field for secrets.
type PublicState struct {
	RoomToken    string              `json:"roomToken"`
	Status       Status              `json:"status"`
	Stake        int                 `json:"stake"`
	Pot          int                 `json:"pot"`
	MaxPlayers   int                 `json:"maxPlayers"`
	Players      []PublicPlayer      `json:"players"`
	HostID       string              `json:"hostId"`
	CaptainIndex int                 `json:"captainIndex"`
	Phase        Phase               `json:"phase"`
	Step         int                 `json:"step"`
	MaxSteps     int                 `json:"maxSteps"`
	WinThreshold int                 `json:"winThreshold"`
	LastRoll     *RollResult         `json:"lastRoll"`
	Decisions    map[string]Decision `json:"decisions"`
	WinnerID     *string             `json:"winnerId"`
}

func (s *RoomState) public() PublicState {
	players := make([]PublicPlayer, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, PublicPlayer{
			ID:        p.ID,
			Nickname:  p.Nickname,
			Points:    p.Points,
			Ready:     p.Ready,
			Connected: p.Connected,
		})
	}

	decisions := make(map[string]Decision, len(s.Decisions))
	for k, v := range s.Decisions {
		decisions[k] = v
	}

	ps := PublicState{
		RoomToken:    s.RoomToken,
		Status:       s.Status,
		Stake:        s.Stake,
		Pot:          s.Pot,
		MaxPlayers:   s.MaxPlayers,
		Players:      players,
		HostID:       s.HostID,
		CaptainIndex: s.CaptainIndex,
		Phase:        s.Phase,
		Step:         s.Step,
		MaxSteps:     s.MaxSteps,
		WinThreshold: s.WinThreshold,
		Decisions:    decisions,
	}

	if s.LastRoll != nil {
		roll := *s.LastRoll
		ps.LastRoll = &roll
	}
	if s.WinnerID != "" {
		winner := s.WinnerID
		ps.WinnerID = &winner
	}

	return ps
}

// clone gives each GetState caller its own slice and map.
func (ps PublicState) clone() PublicState {
	c := ps

	c.Players = make([]PublicPlayer, len(ps.Players))
	copy(c.Players, ps.Players)

	c.Decisions = make(map[string]Decision, len(ps.Decisions))
	for k, v := range ps.Decisions {
		c.Decisions[k] = v
	}

	if ps.LastRoll != nil {
		roll := *ps.LastRoll
		c.LastRoll = &roll
	}
	if ps.WinnerID != nil {
		winner := *ps.WinnerID
		c.WinnerID = &winner
	}

	return c
}

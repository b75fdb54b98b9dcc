/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	startingPoints   = 100
	successThreshold = 40
	stayReward       = 5
	stayPenalty      = 10

	minStake       = 5
	maxStake       = 50
	minPlayers     = 2
	maxPlayersCap  = 8
	maxNicknameLen = 20
)

func mustRandom(n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return buf
}

// rollChallenge draws one byte from crypto/rand. Reducing 256 values mod 100
// slightly favours 1-56; that skew is accepted.
func rollChallenge() RollResult {
	return rollFromByte(mustRandom(1)[0], time.Now())
}

func rollFromByte(b byte, at time.Time) RollResult {
	value := int(b)%100 + 1
	return RollResult{
		Success:   value >= successThreshold,
		Value:     value,
		Timestamp: at.UnixMilli(),
	}
}

// generateRoomToken does not check for collisions; Store.Create does.
func generateRoomToken() string {
	return strings.ToUpper(hex.EncodeToString(mustRandom(4)))
}

func generatePlayerCredentials() (id, secret string) {
	return hex.EncodeToString(mustRandom(8)), hex.EncodeToString(mustRandom(16))
}

// resolveRound applies the roll to every player who stayed. Players who left
// or never decided are untouched.
func resolveRound(players []Player, decisions map[string]Decision, roll RollResult) []Player {
	out := make([]Player, len(players))
	copy(out, players)

	delta := -stayPenalty
	if roll.Success {
		delta = stayReward
	}

	for i := range out {
		if decisions[out[i].ID] != DecisionStay {
			continue
		}
		out[i].Points = max(0, out[i].Points+delta)
	}

	return out
}

// checkWinCondition evaluates, in order: threshold reached, step limit
// (highest score, earliest joiner on ties), then attrition.
func checkWinCondition(players []Player, step, maxSteps, winThreshold int) (string, bool) {
	for _, p := range players {
		if p.Points >= winThreshold {
			return p.ID, true
		}
	}

	if step >= maxSteps && len(players) > 0 {
		best := players[0]
		for _, p := range players[1:] {
			if p.Points > best.Points {
				best = p
			}
		}
		return best.ID, true
	}

	var survivor string
	alive := 0
	for _, p := range players {
		if p.Points > 0 {
			alive++
			survivor = p.ID
		}
	}
	if alive == 1 {
		return survivor, true
	}

	return "", false
}

func distributePot(players []Player, winnerID string, pot int) []Player {
	out := make([]Player, len(players))
	copy(out, players)

	for i := range out {
		if out[i].ID == winnerID {
			out[i].Points += pot
		}
	}

	return out
}

// collectStakes does not clamp; a player may briefly hold negative points.
func collectStakes(players []Player, stake int) ([]Player, int) {
	out := make([]Player, len(players))
	copy(out, players)

	for i := range out {
		out[i].Points -= stake
	}

	return out, stake * len(out)
}

func nextCaptain(current, playerCount int) int {
	return (current + 1) % playerCount
}

// allDecisionsMade ignores the captain and anyone without a live connection.
func allDecisionsMade(players []Player, decisions map[string]Decision, captainID string) bool {
	for _, p := range players {
		if p.ID == captainID || !p.Connected {
			continue
		}
		if _, ok := decisions[p.ID]; !ok {
			return false
		}
	}
	return true
}

func validateStake(stake int) error {
	if stake < minStake || stake > maxStake {
		return validationf("stake must be between %d and %d", minStake, maxStake)
	}
	return nil
}

func validateMaxPlayers(n int) error {
	if n < minPlayers || n > maxPlayersCap {
		return validationf("maxPlayers must be between %d and %d", minPlayers, maxPlayersCap)
	}
	return nil
}

// validateNickname returns the trimmed nickname.
func validateNickname(nickname string, players []Player) (string, error) {
	nickname = strings.TrimSpace(nickname)

	n := utf8.RuneCountInString(nickname)
	if n < 1 || n > maxNicknameLen {
		return "", validationf("nickname must be between 1 and %d characters", maxNicknameLen)
	}

	for _, p := range players {
		if strings.EqualFold(p.Nickname, nickname) {
			return "", conflictf("nickname %q is already taken", nickname)
		}
	}

	return nickname, nil
}

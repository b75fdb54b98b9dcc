/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogKeepsMostRecent(t *testing.T) {
	l := newEventLog(historyCapacity)

	for i := 0; i < 250; i++ {
		l.add(EventDecision, "", strconv.Itoa(i))
	}

	entries := l.entries()
	require.Len(t, entries, historyCapacity)
	assert.Equal(t, "150", entries[0].Detail)
	assert.Equal(t, "249", entries[len(entries)-1].Detail)
}

func TestEventLogBelowCapacity(t *testing.T) {
	l := newEventLog(4)
	l.add(EventRoomCreated, "", "first")
	l.add(EventPlayerJoined, "p1", "second")

	entries := l.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, EventRoomCreated, entries[0].Type)
	assert.Equal(t, "p1", entries[1].PlayerID)
}

func TestEventLogCloneIsIndependent(t *testing.T) {
	l := newEventLog(3)
	l.add(EventRoomCreated, "", "")

	c := l.clone()
	c.add(EventPlayerJoined, "p1", "")

	assert.Equal(t, 1, l.len())
	assert.Equal(t, 2, c.len())
}

func TestEventLogJSON(t *testing.T) {
	l := newEventLog(historyCapacity)
	for i := 0; i < 120; i++ {
		l.add(EventDecision, "p", strconv.Itoa(i))
	}

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var back eventLog
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, l.entries(), back.entries())

	back.add(EventDecision, "p", "120")
	assert.Equal(t, "21", back.entries()[0].Detail, "restored log keeps its capacity")
}

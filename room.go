/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RoomStatus string

const (
	RoomIdle         RoomStatus = "idle"
	RoomWaiting      RoomStatus = "waiting"
	RoomScan         RoomStatus = "relationship-scan"
	RoomFilling      RoomStatus = "data-filling"
	RoomVerification RoomStatus = "verification"
	RoomFinished     RoomStatus = "finished"
)

const answerHistoryCap = 50

// scanQuestion is one entry of a player's personalized question queue
// for the relationship-scan phase.
type scanQuestion struct {
	QuestionID         string
	TargetPlayerID     string
	TargetPlayerName   string
	TargetPlayerGender Gender
}

// Player survives disconnects: the id and node id are stable, only the
// client reference is replaced on reconnect.
type Player struct {
	PlayerID string
	NodeID   string
	Name     string
	Gender   Gender
	Birthday time.Time
	Score    int
	Offline  bool
	Observer bool
	JoinedAt time.Time

	client *client

	queue    []scanQuestion
	cursor   int
	answered int
}

// Spectator is a read-only viewer, removed on disconnect.
type Spectator struct {
	SpectatorID string
	Name        string
	JoinedAt    time.Time

	client *client
}

// Room is one game session. All mutation happens under mu: every
// inbound message handler locks, mutates to completion, and unlocks, so
// handlers for the same room never interleave.
type Room struct {
	mu sync.Mutex

	RoomID   string
	RoomName string
	Status   RoomStatus
	GameTime int // seconds
	Locked   bool

	players    map[string]*Player
	spectators map[string]*Spectator

	controller      *client
	ownerID         string
	originalOwnerID string

	CreatedAt time.Time
	startTime time.Time
	touchedAt time.Time

	history []AnswerRecord
	rels    []Relationship

	// declinedMerges remembers convergence questions answered "no" so
	// the same pair is never asked again.
	declinedMerges map[string]bool

	graph    *DisplayGraph
	store    *NodeStore
	factory  *taskFactory
	board    *taskBoard
	trackers map[string]*EFUTracker
}

func newRoom(name string, gameTime int) *Room {
	now := time.Now()
	return &Room{
		RoomID:         newRoomID(),
		RoomName:       name,
		Status:         RoomWaiting,
		GameTime:       gameTime,
		players:        make(map[string]*Player),
		spectators:     make(map[string]*Spectator),
		declinedMerges: make(map[string]bool),
		CreatedAt:      now,
		touchedAt:      now,
	}
}

// newRoomID returns a short shareable code: the first eight hex digits
// of a UUID, uppercased.
func newRoomID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (r *Room) touch() {
	r.touchedAt = time.Now()
}

// playersByJoinTime returns all players ordered by join time, which is
// also the owner-succession order.
func (r *Room) playersByJoinTime() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// activePlayers are the online, non-observer players that count toward
// start requirements and question targeting.
func (r *Room) activePlayers() []*Player {
	var out []*Player
	for _, p := range r.playersByJoinTime() {
		if !p.Offline && !p.Observer {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) canStart() bool {
	return len(r.activePlayers()) >= 2
}

func (r *Room) remainingTime() int {
	if r.startTime.IsZero() {
		return r.GameTime
	}
	remaining := r.GameTime - int(time.Since(r.startTime).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *Room) snapshot() roomSnapshot {
	players := make([]playerSummary, 0, len(r.players))
	for _, p := range r.playersByJoinTime() {
		players = append(players, playerSummary{
			PlayerID:   p.PlayerID,
			Name:       p.Name,
			Gender:     p.Gender,
			Score:      p.Score,
			IsOffline:  p.Offline,
			IsObserver: p.Observer,
		})
	}
	return roomSnapshot{
		RoomID:        r.RoomID,
		RoomName:      r.RoomName,
		Status:        r.Status,
		GameTime:      r.GameTime,
		RemainingTime: r.remainingTime(),
		Players:       players,
		IsLocked:      r.Locked,
	}
}

// appendHistory prepends a record to the spectator board log, keeping
// only the most recent entries.
func (r *Room) appendHistory(record AnswerRecord) {
	r.history = append([]AnswerRecord{record}, r.history...)
	if len(r.history) > answerHistoryCap {
		r.history = r.history[:answerHistoryCap]
	}
}

// succeedOwner hands controller status to the longest-tenured remaining
// online non-observer player. The original owner keeps a standing claim
// and takes the room back on reconnect. Returns nil when nobody remains.
func (r *Room) succeedOwner(leavingPlayerID string) *Player {
	for _, p := range r.playersByJoinTime() {
		if p.Offline || p.Observer || p.PlayerID == leavingPlayerID {
			continue
		}
		r.controller = p.client
		r.ownerID = p.PlayerID
		return p
	}
	return nil
}

// validatePlayerInfo checks a join payload: a 2-10 rune name, a binary
// gender and a parseable birthday.
func validatePlayerInfo(name, gender, birthday string) (Gender, time.Time, error) {
	length := utf8.RuneCountInString(name)
	if length < 2 || length > 10 {
		return GenderUnknown, time.Time{}, errors.New("姓名長度需為 2-10 字元")
	}
	if gender != string(GenderMale) && gender != string(GenderFemale) {
		return GenderUnknown, time.Time{}, errors.New("請選擇性別")
	}
	born, err := time.Parse("2006-01-02", birthday)
	if err != nil {
		return GenderUnknown, time.Time{}, errors.New("請輸入有效的出生日期")
	}
	return Gender(gender), born, nil
}

// RoomStore is the process-wide room table.
type RoomStore struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	timeout time.Duration
}

func newRoomStore(timeout time.Duration) *RoomStore {
	return &RoomStore{
		rooms:   make(map[string]*Room),
		timeout: timeout,
	}
}

func (rs *RoomStore) Get(id string) (*Room, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	room, ok := rs.rooms[id]
	return room, ok
}

func (rs *RoomStore) Put(room *Room) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rooms[room.RoomID] = room
}

func (rs *RoomStore) Delete(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.rooms, id)
}

func (rs *RoomStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rooms)
}

// sweep deletes rooms untouched for longer than the configured timeout
// and reports how many were removed.
func (rs *RoomStore) sweep() int {
	cutoff := time.Now().Add(-rs.timeout)

	rs.mu.Lock()
	defer rs.mu.Unlock()

	removed := 0
	for id, room := range rs.rooms {
		room.mu.Lock()
		stale := room.touchedAt.Before(cutoff)
		room.mu.Unlock()
		if stale {
			delete(rs.rooms, id)
			removed++
		}
	}
	return removed
}

// sweepLoop runs the idle-room sweep on a coarse interval until the
// context is cancelled.
func (rs *RoomStore) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := rs.sweep(); removed > 0 {
				logger.Info("swept idle rooms", zap.Int("removed", removed))
			}
		}
	}
}

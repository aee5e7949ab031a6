/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"strings"
	"testing"
	"time"
)

func TestNewRoomID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newRoomID()
		if len(id) != 8 {
			t.Fatalf("room id should be 8 characters, got %q", id)
		}
		if id != strings.ToUpper(id) {
			t.Fatalf("room id should be uppercase, got %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 99 {
		t.Fatalf("room ids should be effectively unique, got %d distinct of 100", len(seen))
	}
}

func TestValidatePlayerInfo(t *testing.T) {
	gender, born, err := validatePlayerInfo("小明", "male", "1990-05-01")
	if err != nil {
		t.Fatalf("valid info rejected: %v", err)
	}
	if gender != GenderMale || born.Year() != 1990 {
		t.Fatalf("unexpected parse: %s %v", gender, born)
	}

	cases := []struct{ name, gender, birthday string }{
		{"明", "male", "1990-05-01"},          // too short
		{"一二三四五六七八九十一", "male", "1990-05-01"}, // too long
		{"小明", "robot", "1990-05-01"},        // bad gender
		{"小明", "male", "yesterday"},          // bad date
	}
	for _, c := range cases {
		if _, _, err := validatePlayerInfo(c.name, c.gender, c.birthday); err == nil {
			t.Fatalf("expected rejection for %+v", c)
		}
	}
}

func TestAppendHistoryCap(t *testing.T) {
	room := newRoom("test", 600)
	for i := 0; i < answerHistoryCap+10; i++ {
		room.appendHistory(AnswerRecord{Timestamp: int64(i)})
	}
	if len(room.history) != answerHistoryCap {
		t.Fatalf("history should cap at %d, got %d", answerHistoryCap, len(room.history))
	}
	if room.history[0].Timestamp != int64(answerHistoryCap+9) {
		t.Fatalf("newest record should be first, got %d", room.history[0].Timestamp)
	}
}

func TestSucceedOwnerByJoinOrder(t *testing.T) {
	room := newRoom("test", 600)
	base := time.Now()
	for i, id := range []string{"p1", "p2", "p3"} {
		p := testPlayer(id, "玩家"+id, GenderMale)
		p.JoinedAt = base.Add(time.Duration(i) * time.Second)
		room.players[id] = p
	}
	room.ownerID = "p1"
	room.originalOwnerID = "p1"

	next := room.succeedOwner("p1")
	if next == nil || next.PlayerID != "p2" {
		t.Fatalf("succession should follow join order, got %v", next)
	}
	if room.ownerID != "p2" {
		t.Fatalf("current owner not updated: %s", room.ownerID)
	}
	if room.originalOwnerID != "p1" {
		t.Fatalf("original owner claim must survive succession")
	}

	// Offline and observer players are skipped. p1 went offline before
	// succession ran, as the disconnect flow does.
	room.players["p1"].Offline = true
	room.players["p2"].Offline = true
	room.players["p3"].Observer = true
	if got := room.succeedOwner("p2"); got != nil {
		t.Fatalf("nobody eligible should yield nil, got %v", got)
	}
}

func TestRoomSnapshot(t *testing.T) {
	room := newRoom("家族聚會", 600)
	room.players["p1"] = testPlayer("p1", "小明", GenderMale)

	snap := room.snapshot()
	if snap.RoomID != room.RoomID || snap.RoomName != "家族聚會" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Status != RoomWaiting || snap.IsLocked {
		t.Fatalf("fresh room should be waiting and unlocked: %+v", snap)
	}
	if snap.RemainingTime != 600 {
		t.Fatalf("remaining time before start should equal game time, got %d", snap.RemainingTime)
	}
	if len(snap.Players) != 1 || snap.Players[0].Name != "小明" {
		t.Fatalf("player summary missing: %+v", snap.Players)
	}
}

func TestRoomStoreSweep(t *testing.T) {
	rs := newRoomStore(time.Hour)

	stale := newRoom("stale", 600)
	stale.touchedAt = time.Now().Add(-2 * time.Hour)
	fresh := newRoom("fresh", 600)
	rs.Put(stale)
	rs.Put(fresh)

	if removed := rs.sweep(); removed != 1 {
		t.Fatalf("expected 1 swept room, got %d", removed)
	}
	if _, ok := rs.Get(stale.RoomID); ok {
		t.Fatalf("stale room should be gone")
	}
	if _, ok := rs.Get(fresh.RoomID); !ok {
		t.Fatalf("fresh room should survive")
	}
}

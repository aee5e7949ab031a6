/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import "encoding/json"

// Inbound frames are JSON objects with a "type" discriminator. The
// envelope is decoded first, then the variant payload.
type inboundEnvelope struct {
	Type string `json:"type"`
}

type roomCreateMsg struct {
	Name     string `json:"name"`
	GameTime int    `json:"gameTime"` // seconds
}

type memberJoinMsg struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Birthday string `json:"birthday"`
}

type spectatorWatchMsg struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name,omitempty"`
}

type relationshipAnswerMsg struct {
	QuestionID string `json:"questionId"`
	Answer     struct {
		Direction string `json:"direction,omitempty"`
		Relation  string `json:"relation"`
	} `json:"answer"`
}

type relationshipSkipMsg struct {
	QuestionID string `json:"questionId"`
}

type taskAnswerMsg struct {
	TaskID string `json:"taskId"`
	// Shape depends on the task variant: a string for naming,
	// attribute and upward tasks, a bool for convergence,
	// yes/no/unknown for lateral, a count or {hasMore,
	// additionalCount} for downward.
	Answer json.RawMessage `json:"answer"`
}

type taskSkipMsg struct {
	TaskID string `json:"taskId"`
}

type reconnectMsg struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// downwardAnswer is the structured form of a downward-inquiry answer.
type downwardAnswer struct {
	HasMore         bool `json:"hasMore"`
	AdditionalCount int  `json:"additionalCount,omitempty"`
}

// Outbound messages. Every struct sets Type in its constructor site;
// the send path marshals whatever it is handed.

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errMessage(text string) errorMsg {
	return errorMsg{Type: "error", Message: text}
}

type roomCreatedMsg struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	ShareLink string `json:"shareLink"`
}

type playerRegisteredMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	NodeID   string `json:"nodeId"`
	IsOwner  bool   `json:"isOwner"`
}

type memberJoinedMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Gender   Gender `json:"gender"`
	IsOwner  bool   `json:"isOwner"`
}

type typingNotifyMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type playerSummary struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Gender     Gender `json:"gender"`
	Score      int    `json:"score"`
	IsOffline  bool   `json:"isOffline"`
	IsObserver bool   `json:"isObserver"`
}

type roomSnapshot struct {
	RoomID        string          `json:"roomId"`
	RoomName      string          `json:"roomName"`
	Status        RoomStatus      `json:"status"`
	GameTime      int             `json:"gameTime"`
	RemainingTime int             `json:"remainingTime"`
	Players       []playerSummary `json:"players"`
	IsLocked      bool            `json:"isLocked"`
}

type syncStateMsg struct {
	Type string `json:"type"`
	roomSnapshot
}

type gameStartedMsg struct {
	Type      string     `json:"type"`
	StartTime int64      `json:"startTime"`
	Phase     RoomStatus `json:"phase"`
}

type relationshipQuestionMsg struct {
	Type               string `json:"type"`
	QuestionID         string `json:"questionId"`
	AskedPlayerID      string `json:"askedPlayerId"`
	TargetPlayerID     string `json:"targetPlayerId"`
	TargetPlayerName   string `json:"targetPlayerName"`
	TargetPlayerGender Gender `json:"targetPlayerGender"`
}

type relationshipConfirmedMsg struct {
	Type       string `json:"type"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type stageCompletedMsg struct {
	Type      string        `json:"type"`
	Stage     RoomStatus    `json:"stage"`
	NextStage RoomStatus    `json:"nextStage"`
	Mvft      *DisplayGraph `json:"mvft,omitempty"`
}

type ownerChangedMsg struct {
	Type         string `json:"type"`
	NewOwnerID   string `json:"newOwnerId"`
	NewOwnerName string `json:"newOwnerName"`
}

type reconnectedMsg struct {
	Type      string       `json:"type"` // "reconnected" or "owner_restored"
	RoomState roomSnapshot `json:"roomState"`
}

type playerOfflineMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type spectatorJoinedMsg struct {
	Type        string `json:"type"`
	SpectatorID string `json:"spectatorId"`
	Name        string `json:"name,omitempty"`
	Message     string `json:"message,omitempty"`
}

// AnswerRecord is one line of the spectator board's history.
type AnswerRecord struct {
	Timestamp  int64  `json:"timestamp"`
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
	Summary    string `json:"summary"`
	Status     string `json:"status"` // "confirmed" or "skipped"
}

type spectatorSyncMsg struct {
	Type          string          `json:"type"`
	RoomName      string          `json:"roomName"`
	RoomStatus    RoomStatus      `json:"roomStatus"`
	Players       []playerSummary `json:"players"`
	AnswerHistory []AnswerRecord  `json:"answerHistory"`
	Mvft          *DisplayGraph   `json:"mvft,omitempty"`
	EFUPercent    int             `json:"efuPercent"`
}

type spectatorAnswerMsg struct {
	Type string `json:"type"`
	AnswerRecord
}

type spectatorPlayerStatusMsg struct {
	Type           string `json:"type"`
	PlayerID       string `json:"playerId"`
	Name           string `json:"name"`
	IsOffline      bool   `json:"isOffline"`
	AnsweredCount  int    `json:"answeredCount"`
	TotalQuestions int    `json:"totalQuestions"`
	CurrentSummary string `json:"currentQuestionSummary,omitempty"`
}

type spectatorTreeMsg struct {
	Type string        `json:"type"`
	Mvft *DisplayGraph `json:"mvft"`
}

type spectatorRedirectMsg struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

type taskAssignedMsg struct {
	Type string `json:"type"`
	Task Task   `json:"task"`
}

type taskConfirmedMsg struct {
	Type        string `json:"type"`
	TaskID      string `json:"taskId"`
	Answer      any    `json:"answer"`
	EFUComplete bool   `json:"efu_complete"`
	NextTask    Task   `json:"nextTask,omitempty"`
}

type taskSkippedMsg struct {
	Type     string `json:"type"`
	TaskID   string `json:"taskId"`
	NextTask Task   `json:"nextTask,omitempty"`
}

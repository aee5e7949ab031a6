/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultGameTime = 600 // seconds
	scanTargetCap   = 3
	taskScoreAward  = 10
)

// gameServer owns the room table and implements every inbound message.
// Per-room state is guarded by the room mutex; a handler locks the room
// once and runs to completion, so handlers for one room never
// interleave.
type gameServer struct {
	cfg   *Config
	rooms *RoomStore
}

func newGameServer(cfg *Config) *gameServer {
	return &gameServer{
		cfg:   cfg,
		rooms: newRoomStore(cfg.roomTimeout),
	}
}

// handleMessage decodes the envelope and routes to the typed handler.
// Called from the read pump, which already isolates panics per message.
func (g *gameServer) handleMessage(c *client, raw []byte) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	switch envelope.Type {
	case "room:create":
		g.handleRoomCreate(c, raw)
	case "member:join":
		g.handleMemberJoin(c, raw)
	case "member:typing":
		g.handleTyping(c)
	case "spectator:watch":
		g.handleSpectatorWatch(c, raw)
	case "game:start":
		g.handleGameStart(c)
	case "relationship_answer":
		g.handleRelationshipAnswer(c, raw)
	case "relationship_skip":
		g.handleRelationshipSkip(c, raw)
	case "data_filling:answer":
		g.handleTaskAnswer(c, raw)
	case "data_filling:skip":
		g.handleTaskSkip(c, raw)
	case "reconnect":
		g.handleReconnect(c, raw)
	default:
		c.send(errMessage("未知的訊息類型：" + envelope.Type))
	}
}

func (g *gameServer) handleRoomCreate(c *client, raw []byte) {
	var msg roomCreateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = "家族聚會"
	}
	gameTime := msg.GameTime
	if gameTime <= 0 {
		gameTime = defaultGameTime
	}

	room := newRoom(name, gameTime)
	g.rooms.Put(room)
	c.roomID = room.RoomID

	logger.Info("room created",
		zap.String("room", room.RoomID),
		zap.String("name", name),
		zap.Int("gameTime", gameTime))

	c.send(roomCreatedMsg{
		Type:      "room:created",
		RoomID:    room.RoomID,
		ShareLink: g.cfg.shareBase() + "/room/" + room.RoomID,
	})
}

func (g *gameServer) handleMemberJoin(c *client, raw []byte) {
	var msg memberJoinMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	room, ok := g.rooms.Get(msg.RoomID)
	if !ok {
		c.send(errMessage("房間不存在"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	// A join carrying a known player id is a reconnect.
	if msg.PlayerID != "" {
		if p, ok := room.players[msg.PlayerID]; ok {
			g.reconnectPlayer(room, p, c)
			return
		}
	}

	// Joining a locked room downgrades to spectator.
	if room.Locked {
		g.addSpectator(room, c, msg.Name, "遊戲已開始，您將以觀察者身分加入")
		return
	}

	gender, birthday, err := validatePlayerInfo(msg.Name, msg.Gender, msg.Birthday)
	if err != nil {
		c.send(errMessage(err.Error()))
		return
	}

	p := &Player{
		PlayerID: uuid.NewString(),
		Name:     strings.TrimSpace(msg.Name),
		Gender:   gender,
		Birthday: birthday,
		JoinedAt: time.Now(),
		client:   c,
	}
	p.NodeID = p.PlayerID
	room.players[p.PlayerID] = p
	c.roomID = room.RoomID
	c.playerID = p.PlayerID

	isOwner := room.ownerID == ""
	if isOwner {
		room.ownerID = p.PlayerID
		room.originalOwnerID = p.PlayerID
		room.controller = c
	}

	logger.Info("player joined",
		zap.String("room", room.RoomID),
		zap.String("player", p.PlayerID),
		zap.Bool("owner", isOwner))

	c.send(playerRegisteredMsg{
		Type:     "player_registered",
		PlayerID: p.PlayerID,
		NodeID:   p.NodeID,
		IsOwner:  isOwner,
	})
	room.broadcastOthers(p.PlayerID, memberJoinedMsg{
		Type:     "member:joined",
		PlayerID: p.PlayerID,
		Name:     p.Name,
		Gender:   p.Gender,
		IsOwner:  isOwner,
	})
	room.broadcastPlayers(syncStateMsg{Type: "sync:state", roomSnapshot: room.snapshot()})
}

func (g *gameServer) reconnectPlayer(room *Room, p *Player, c *client) {
	p.Offline = false
	p.client = c
	c.roomID = room.RoomID
	c.playerID = p.PlayerID

	// The original owner takes the room back from any interim owner.
	msgType := "reconnected"
	if p.PlayerID == room.originalOwnerID && room.ownerID != p.PlayerID {
		room.ownerID = p.PlayerID
		room.controller = c
		msgType = "owner_restored"
		room.broadcastOthers(p.PlayerID, ownerChangedMsg{
			Type:         "owner_changed",
			NewOwnerID:   p.PlayerID,
			NewOwnerName: p.Name,
		})
	} else if p.PlayerID == room.ownerID {
		room.controller = c
	}

	logger.Info("player reconnected",
		zap.String("room", room.RoomID),
		zap.String("player", p.PlayerID),
		zap.String("as", msgType))

	c.send(reconnectedMsg{Type: msgType, RoomState: room.snapshot()})
	room.broadcastOthers(p.PlayerID, syncStateMsg{Type: "sync:state", roomSnapshot: room.snapshot()})

	// Put the player back where they left off.
	switch room.Status {
	case RoomScan:
		if q := p.currentQuestion(); q != nil {
			c.send(questionMessage(p, q))
		}
	case RoomFilling:
		for _, t := range room.board.inflight {
			if t.Base().AssignedPlayerID == p.PlayerID {
				c.send(taskAssignedMsg{Type: "data_filling:task_assigned", Task: t})
				return
			}
		}
		if next := room.board.selectForPlayer(room.store, p.PlayerID, p.NodeID); next != nil {
			c.send(taskAssignedMsg{Type: "data_filling:task_assigned", Task: next})
		}
	}
}

func (g *gameServer) handleReconnect(c *client, raw []byte) {
	var msg reconnectMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	room, ok := g.rooms.Get(msg.RoomID)
	if !ok {
		c.send(errMessage("房間不存在"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	p, ok := room.players[msg.PlayerID]
	if !ok {
		c.send(errMessage("玩家不存在"))
		return
	}
	g.reconnectPlayer(room, p, c)
}

func (g *gameServer) handleTyping(c *client) {
	room, p := g.clientPlayer(c)
	if room == nil || p == nil {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()
	room.broadcastOthers(p.PlayerID, typingNotifyMsg{
		Type:      "member:typing_notify",
		Timestamp: time.Now().UnixMilli(),
	})
}

func (g *gameServer) addSpectator(room *Room, c *client, name, message string) {
	s := &Spectator{
		SpectatorID: uuid.NewString(),
		Name:        strings.TrimSpace(name),
		JoinedAt:    time.Now(),
		client:      c,
	}
	room.spectators[s.SpectatorID] = s
	c.roomID = room.RoomID
	c.spectatorID = s.SpectatorID

	c.send(spectatorJoinedMsg{
		Type:        "spectator:joined",
		SpectatorID: s.SpectatorID,
		Name:        s.Name,
		Message:     message,
	})
	c.send(g.spectatorSync(room))
}

func (g *gameServer) handleSpectatorWatch(c *client, raw []byte) {
	var msg spectatorWatchMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	room, ok := g.rooms.Get(msg.RoomID)
	if !ok {
		c.send(errMessage("房間不存在"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	// Before the game locks, anyone opening the spectator view can
	// still join as a player.
	if !room.Locked {
		c.send(spectatorRedirectMsg{Type: "spectator:redirect", Target: "join"})
		return
	}
	g.addSpectator(room, c, msg.Name, "")
}

func (g *gameServer) spectatorSync(room *Room) spectatorSyncMsg {
	msg := spectatorSyncMsg{
		Type:          "spectator:sync",
		RoomName:      room.RoomName,
		RoomStatus:    room.Status,
		Players:       room.snapshot().Players,
		AnswerHistory: room.history,
		Mvft:          room.graph,
	}
	if room.store != nil {
		msg.EFUPercent = efuCompletionPercent(room.store)
	}
	return msg
}

func (g *gameServer) handleGameStart(c *client) {
	room, p := g.clientPlayer(c)
	if room == nil || p == nil {
		c.send(errMessage("尚未加入房間"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	// The connection must be the one holding controller status: a stale
	// connection for the owner's player id cannot start the game.
	if p.PlayerID != room.ownerID || room.controller != c {
		c.send(errMessage("只有房主可以開始遊戲"))
		return
	}
	if room.Status != RoomWaiting {
		c.send(errMessage("遊戲已經開始"))
		return
	}
	if !room.canStart() {
		c.send(errMessage("至少需要 2 位玩家才能開始"))
		return
	}

	room.Status = RoomScan
	room.Locked = true
	room.startTime = time.Now()
	buildQuestionQueues(room)

	logger.Info("game started",
		zap.String("room", room.RoomID),
		zap.Int("players", len(room.activePlayers())))

	room.broadcastPlayers(gameStartedMsg{
		Type:      "game:started",
		StartTime: room.startTime.UnixMilli(),
		Phase:     RoomScan,
	})
	for _, player := range room.activePlayers() {
		if q := player.currentQuestion(); q != nil && player.client != nil {
			player.client.send(questionMessage(player, q))
		}
	}
}

// buildQuestionQueues gives every active player a personalized queue:
// all other active players, capped at three random ones in larger
// rooms.
func buildQuestionQueues(room *Room) {
	active := room.activePlayers()
	for _, p := range active {
		var targets []*Player
		for _, other := range active {
			if other.PlayerID != p.PlayerID {
				targets = append(targets, other)
			}
		}
		if len(targets) > scanTargetCap {
			rand.Shuffle(len(targets), func(i, j int) {
				targets[i], targets[j] = targets[j], targets[i]
			})
			targets = targets[:scanTargetCap]
		}

		p.queue = p.queue[:0]
		p.cursor = 0
		p.answered = 0
		for _, target := range targets {
			p.queue = append(p.queue, scanQuestion{
				QuestionID:         "q_" + uuid.NewString(),
				TargetPlayerID:     target.PlayerID,
				TargetPlayerName:   target.Name,
				TargetPlayerGender: target.Gender,
			})
		}
	}
}

func (p *Player) currentQuestion() *scanQuestion {
	if p.cursor < len(p.queue) {
		return &p.queue[p.cursor]
	}
	return nil
}

func questionMessage(p *Player, q *scanQuestion) relationshipQuestionMsg {
	return relationshipQuestionMsg{
		Type:               "relationship_question",
		QuestionID:         q.QuestionID,
		AskedPlayerID:      p.PlayerID,
		TargetPlayerID:     q.TargetPlayerID,
		TargetPlayerName:   q.TargetPlayerName,
		TargetPlayerGender: q.TargetPlayerGender,
	}
}

func (g *gameServer) handleRelationshipAnswer(c *client, raw []byte) {
	var msg relationshipAnswerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	room, p := g.clientPlayer(c)
	if room == nil || p == nil {
		c.send(errMessage("尚未加入房間"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	if room.Status != RoomScan {
		c.send(errMessage("目前不在關係掃描階段"))
		return
	}
	q := p.currentQuestion()
	if q == nil || q.QuestionID != msg.QuestionID {
		c.send(errMessage("題目已過期"))
		return
	}

	target, ok := room.players[q.TargetPlayerID]
	if !ok {
		c.send(errMessage("對象玩家已離開"))
		return
	}

	// A title the resolver cannot map drops the claim without a record;
	// the player's turn still advances.
	relation := strings.TrimSpace(msg.Answer.Relation)
	if def, resolved := kinship.TitleToPath(relation, msg.Answer.Direction); resolved {
		room.rels = append(room.rels, Relationship{
			SubjectPlayerID: p.PlayerID,
			ObjectPlayerID:  target.PlayerID,
			SubjectNodeID:   p.NodeID,
			ObjectNodeID:    target.NodeID,
			Direction:       msg.Answer.Direction,
			Title:           relation,
			Path:            def.Path,
			RoleLabels:      def.RoleLabels,
		})
	} else {
		logger.Debug("unresolvable kinship title",
			zap.String("room", room.RoomID),
			zap.String("title", relation))
	}

	c.send(relationshipConfirmedMsg{
		Type:       "relationship_confirmed",
		QuestionID: q.QuestionID,
		Answer:     relation,
	})

	record := AnswerRecord{
		Timestamp:  time.Now().UnixMilli(),
		PlayerName: p.Name,
		PlayerID:   p.PlayerID,
		Summary:    fmt.Sprintf("%s 是 %s 的%s", target.Name, p.Name, relation),
		Status:     "confirmed",
	}
	room.appendHistory(record)
	room.broadcastSpectators(spectatorAnswerMsg{Type: "spectator:answer_submitted", AnswerRecord: record})
	g.notifySpectatorProgress(room, p)

	p.cursor++
	p.answered++
	g.sendNextQuestion(room.RoomID, p.PlayerID)
}

func (g *gameServer) handleRelationshipSkip(c *client, raw []byte) {
	var msg relationshipSkipMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	room, p := g.clientPlayer(c)
	if room == nil || p == nil {
		c.send(errMessage("尚未加入房間"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	if room.Status != RoomScan {
		c.send(errMessage("目前不在關係掃描階段"))
		return
	}
	q := p.currentQuestion()
	if q == nil || q.QuestionID != msg.QuestionID {
		c.send(errMessage("題目已過期"))
		return
	}

	record := AnswerRecord{
		Timestamp:  time.Now().UnixMilli(),
		PlayerName: p.Name,
		PlayerID:   p.PlayerID,
		Summary:    fmt.Sprintf("%s 跳過了與 %s 的關係", p.Name, q.TargetPlayerName),
		Status:     "skipped",
	}
	room.appendHistory(record)
	room.broadcastSpectators(spectatorAnswerMsg{Type: "spectator:answer_submitted", AnswerRecord: record})
	g.notifySpectatorProgress(room, p)

	p.cursor++
	p.answered++
	g.sendNextQuestion(room.RoomID, p.PlayerID)
}

// sendNextQuestion delivers a player's next scan question after the
// settle delay. The cursor has already advanced at accept time, so a
// retried frame for the old question is rejected as expired. The
// callback re-resolves room and player by id: either may be gone by
// the time the timer fires.
func (g *gameServer) sendNextQuestion(roomID, playerID string) {
	time.AfterFunc(g.cfg.questionDelay, func() {
		room, ok := g.rooms.Get(roomID)
		if !ok {
			return
		}

		room.mu.Lock()
		defer room.mu.Unlock()

		p, ok := room.players[playerID]
		if !ok || room.Status != RoomScan {
			return
		}

		if q := p.currentQuestion(); q != nil {
			if p.client != nil && !p.Offline {
				p.client.send(questionMessage(p, q))
			}
			return
		}

		if room.scanComplete() {
			g.startDataFilling(room)
		}
	})
}

// scanComplete reports whether every non-observer player has exhausted
// their question queue.
func (r *Room) scanComplete() bool {
	for _, p := range r.players {
		if p.Observer || p.queue == nil {
			continue
		}
		if p.cursor < len(p.queue) {
			return false
		}
	}
	return true
}

// startDataFilling builds the phase-2 state from the collected
// relationships. A panic anywhere in the build degrades the room to
// finished with whatever skeleton graph can still be drawn, rather than
// taking the whole room down. Caller holds the room lock.
func (g *gameServer) startDataFilling(room *Room) {
	defer func() {
		if r := recover(); r == nil {
			return
		} else {
			logger.Error("data-filling build failed, finishing with skeleton",
				zap.String("room", room.RoomID),
				zap.Any("panic", r))
		}

		func() {
			defer func() { recover() }()
			room.graph = buildSkeletonGraph(room.rels, room.gamePlayers(), newNodeStore())
		}()
		room.Status = RoomFinished
		room.broadcastPlayers(stageCompletedMsg{
			Type:      "stage_completed",
			Stage:     RoomScan,
			NextStage: RoomFinished,
			Mvft:      room.graph,
		})
		room.broadcastSpectators(spectatorTreeMsg{Type: "spectator:tree_updated", Mvft: room.graph})
	}()

	players := room.gamePlayers()
	store := instantiateVirtualNodes(room.rels, players)
	graph := buildSkeletonGraph(room.rels, players, store)

	room.store = store
	room.graph = graph
	room.trackers = initEFUTrackers(store)
	room.factory = &taskFactory{store: store}
	room.board = newTaskBoard()
	room.board.backlog = generateTasks(room.factory)
	room.Status = RoomFilling

	logger.Info("data-filling phase started",
		zap.String("room", room.RoomID),
		zap.Int("nodes", store.Len()),
		zap.Int("tasks", len(room.board.backlog)))

	room.broadcastPlayers(stageCompletedMsg{
		Type:      "stage_completed",
		Stage:     RoomScan,
		NextStage: RoomFilling,
		Mvft:      graph,
	})
	room.broadcastSpectators(spectatorTreeMsg{Type: "spectator:tree_updated", Mvft: graph})

	// Batch dispatch: pick the best (task, player) pair room-wide,
	// repeating until every connected player holds one task or nothing
	// dispatchable remains.
	pending := room.activePlayers()
	for len(pending) > 0 {
		t, playerID := room.board.selectAny(store, pending)
		if t == nil {
			break
		}
		for i, p := range pending {
			if p.PlayerID != playerID {
				continue
			}
			if p.client != nil {
				p.client.send(taskAssignedMsg{Type: "data_filling:task_assigned", Task: t})
			}
			pending = append(pending[:i], pending[i+1:]...)
			break
		}
	}
}

// gamePlayers are all non-observer players, offline included: a player
// who answered questions and then dropped still belongs in the tree.
func (r *Room) gamePlayers() []*Player {
	var out []*Player
	for _, p := range r.playersByJoinTime() {
		if !p.Observer {
			out = append(out, p)
		}
	}
	return out
}

func (g *gameServer) handleTaskAnswer(c *client, raw []byte) {
	var msg taskAnswerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	room, p := g.clientPlayer(c)
	if room == nil || p == nil {
		c.send(errMessage("尚未加入房間"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	if room.Status != RoomFilling {
		c.send(errMessage("目前不在資料填充階段"))
		return
	}
	t, ok := room.board.inflight[msg.TaskID]
	if !ok || t.Base().AssignedPlayerID != p.PlayerID {
		c.send(errMessage("任務不存在或未指派給您"))
		return
	}

	answer, summary, err := g.applyTaskAnswer(room, t, msg.Answer)
	if err != nil {
		c.send(errMessage(err.Error()))
		return
	}

	room.board.complete(t, p.PlayerID, answer)
	p.Score += taskScoreAward

	record := AnswerRecord{
		Timestamp:  time.Now().UnixMilli(),
		PlayerName: p.Name,
		PlayerID:   p.PlayerID,
		Summary:    summary,
		Status:     "confirmed",
	}
	room.appendHistory(record)

	room.graph = buildSkeletonGraph(room.rels, room.gamePlayers(), room.store)
	room.broadcastSpectators(spectatorAnswerMsg{Type: "spectator:answer_submitted", AnswerRecord: record})
	room.broadcastSpectators(spectatorTreeMsg{Type: "spectator:tree_updated", Mvft: room.graph})
	g.notifySpectatorProgress(room, p)

	efuDone := checkEFUCompletion(room.store)
	if efuDone && room.board.exhausted(room.store) {
		// Players see the full graph for the first time here.
		room.Status = RoomVerification
		logger.Info("family tree complete", zap.String("room", room.RoomID))
		room.broadcastPlayers(stageCompletedMsg{
			Type:      "stage_completed",
			Stage:     RoomFilling,
			NextStage: RoomVerification,
			Mvft:      room.graph,
		})
		c.send(taskConfirmedMsg{
			Type:        "data_filling:task_confirmed",
			TaskID:      msg.TaskID,
			Answer:      answer,
			EFUComplete: true,
		})
		return
	}

	next := room.board.selectForPlayer(room.store, p.PlayerID, p.NodeID)
	c.send(taskConfirmedMsg{
		Type:        "data_filling:task_confirmed",
		TaskID:      msg.TaskID,
		Answer:      answer,
		EFUComplete: efuDone,
		NextTask:    next,
	})
}

// applyTaskAnswer mutates the node store according to the task variant
// and returns the decoded answer plus a history line.
func (g *gameServer) applyTaskAnswer(room *Room, t Task, raw json.RawMessage) (any, string, error) {
	store := room.store
	base := t.Base()
	vnode, ok := store.Get(base.TargetNodeID)
	if !ok && base.Type != TaskNodeConvergence {
		return nil, "", fmt.Errorf("節點已不存在")
	}

	switch v := t.(type) {
	case *NamingTask:
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, "", fmt.Errorf("無法解析答案")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, "", fmt.Errorf("姓名不可為空")
		}
		label := humanNodeLabel(vnode.ID, store)
		g.applyName(room, vnode, name)
		return name, fmt.Sprintf("為「%s」命名為 %s", label, name), nil

	case *AttributeTask:
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, "", fmt.Errorf("無法解析答案")
		}
		value = strings.TrimSpace(value)
		if v.AttributeType == "gender" {
			if value != string(GenderMale) && value != string(GenderFemale) {
				return nil, "", fmt.Errorf("請選擇性別")
			}
			vnode.Gender = Gender(value)
		} else {
			if _, err := time.Parse("2006-01-02", value); err != nil {
				return nil, "", fmt.Errorf("請輸入有效的日期")
			}
			vnode.Birthday = value
		}
		vnode.UpdatedAt = time.Now()
		return value, fmt.Sprintf("補齊了 %s 的資料", humanNodeLabel(vnode.ID, store)), nil

	case *UpwardTask:
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, "", fmt.Errorf("無法解析答案")
		}
		name = strings.TrimSpace(name)
		label := humanNodeLabel(vnode.ID, store)
		if name == "" || name == "不知道" || name == "沒有" {
			markEFUDimension(store, room.trackers, vnode.ID, DimUpward)
			return name, fmt.Sprintf("確認 %s 的上行追溯已完成", label), nil
		}
		g.applyParentName(room, vnode, v.ParentType, name)
		if vnode.FatherID != "" && vnode.MotherID != "" {
			markEFUDimension(store, room.trackers, vnode.ID, DimUpward)
		}
		return name, fmt.Sprintf("%s 的%s是 %s", label, parentTypeLabel(v.ParentType), name), nil

	case *LateralTask:
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, "", fmt.Errorf("無法解析答案")
		}
		label := humanNodeLabel(vnode.ID, store)
		if value == "yes" {
			_, tasks := spawnSpouseNode(room.factory, vnode.ID)
			room.board.backlog = append(room.board.backlog, tasks...)
		}
		markEFUDimension(store, room.trackers, vnode.ID, DimLateral)
		return value, fmt.Sprintf("確認了 %s 的婚姻狀況", label), nil

	case *DownwardTask:
		count, err := decodeDownwardCount(raw)
		if err != nil {
			return nil, "", err
		}
		label := humanNodeLabel(vnode.ID, store)
		if count > 0 {
			_, tasks := spawnChildNodes(room.factory, vnode.ID, count)
			room.board.backlog = append(room.board.backlog, tasks...)
		}
		markEFUDimension(store, room.trackers, vnode.ID, DimDownward)
		return count, fmt.Sprintf("確認了 %s 的子女數", label), nil

	case *ConvergenceTask:
		var same bool
		if err := json.Unmarshal(raw, &same); err != nil {
			return nil, "", fmt.Errorf("無法解析答案")
		}
		key := mergePairKey(base.TargetNodeID, v.CandidateNodeID)
		if same {
			mergeVirtualNodes(store, base.TargetNodeID, v.CandidateNodeID)
			room.board.purgeNode(v.CandidateNodeID)
			delete(room.trackers, v.CandidateNodeID)
			return same, fmt.Sprintf("確認 %s 與 %s 為同一人", v.TargetNodeName, v.CandidateNodeName), nil
		}
		room.declinedMerges[key] = true
		return same, fmt.Sprintf("確認 %s 與 %s 不是同一人", v.TargetNodeName, v.CandidateNodeName), nil

	case *AgeOrderingTask:
		var order []string
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, "", fmt.Errorf("無法解析答案")
		}
		return order, "回答了年齡排序", nil
	}

	return nil, "", fmt.Errorf("未知的任務類型")
}

// applyName sets a node's name and runs the ripple effects: label
// propagation into pending tasks, same-name convergence detection, and
// tracker refresh.
func (g *gameServer) applyName(room *Room, vnode *VirtualNode, name string) {
	vnode.Name = name
	vnode.UpdatedAt = time.Now()

	inflight := make([]Task, 0, len(room.board.inflight))
	for _, t := range room.board.inflight {
		inflight = append(inflight, t)
	}
	propagateNaming(room.factory, vnode.ID, name, room.board.backlog, inflight)

	for _, t := range detectSameNameNodes(room.factory, vnode.ID, name) {
		conv := t.(*ConvergenceTask)
		key := mergePairKey(conv.TargetNodeID, conv.CandidateNodeID)
		if room.declinedMerges[key] || room.hasPendingMerge(key) {
			continue
		}
		room.board.backlog = append(room.board.backlog, t)
	}

	if tracker, ok := room.trackers[vnode.ID]; ok {
		tracker.NodeName = name
	}
}

// applyParentName resolves an upward answer into a parent node,
// creating one when no pointer exists yet.
func (g *gameServer) applyParentName(room *Room, vnode *VirtualNode, parentType, name string) {
	store := room.store

	parentID := vnode.FatherID
	gender := GenderMale
	edge := "P_f"
	if parentType == "mother" {
		parentID = vnode.MotherID
		gender = GenderFemale
		edge = "P_m"
	}

	if parentID == "" {
		parentID = dynamicNodeID(vnode.ID, edge)
		now := time.Now()
		store.Put(&VirtualNode{
			ID:        parentID,
			Gender:    gender,
			ChildIDs:  []string{vnode.ID},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if parentType == "mother" {
			vnode.MotherID = parentID
		} else {
			vnode.FatherID = parentID
		}
	}

	if parent, ok := store.Get(parentID); ok {
		parent.ChildIDs = addUnique(parent.ChildIDs, vnode.ID)
		if parent.Name == "" {
			g.applyName(room, parent, name)
		}
	}
}

func parentTypeLabel(parentType string) string {
	if parentType == "mother" {
		return "母親"
	}
	return "父親"
}

func decodeDownwardCount(raw json.RawMessage) (int, error) {
	var structured downwardAnswer
	if err := json.Unmarshal(raw, &structured); err == nil {
		if !structured.HasMore {
			return 0, nil
		}
		return structured.AdditionalCount, nil
	}
	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("無法解析答案")
	}
	return count, nil
}

func mergePairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (r *Room) hasPendingMerge(key string) bool {
	check := func(t Task) bool {
		conv, ok := t.(*ConvergenceTask)
		return ok && mergePairKey(conv.TargetNodeID, conv.CandidateNodeID) == key
	}
	for _, t := range r.board.backlog {
		if check(t) {
			return true
		}
	}
	for _, t := range r.board.inflight {
		if check(t) {
			return true
		}
	}
	return false
}

func (g *gameServer) handleTaskSkip(c *client, raw []byte) {
	var msg taskSkipMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.send(errMessage("無法解析訊息"))
		return
	}

	room, p := g.clientPlayer(c)
	if room == nil || p == nil {
		c.send(errMessage("尚未加入房間"))
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.touch()

	if room.Status != RoomFilling {
		c.send(errMessage("目前不在資料填充階段"))
		return
	}
	t, ok := room.board.inflight[msg.TaskID]
	if !ok || t.Base().AssignedPlayerID != p.PlayerID {
		c.send(errMessage("任務不存在或未指派給您"))
		return
	}

	room.board.skip(t, p.PlayerID)
	room.appendHistory(AnswerRecord{
		Timestamp:  time.Now().UnixMilli(),
		PlayerName: p.Name,
		PlayerID:   p.PlayerID,
		Summary:    fmt.Sprintf("%s 跳過了一個任務", p.Name),
		Status:     "skipped",
	})

	next := room.board.selectForPlayer(room.store, p.PlayerID, p.NodeID)
	c.send(taskSkippedMsg{Type: "data_filling:task_skipped", TaskID: msg.TaskID, NextTask: next})
}

// handleDisconnect is called by the transport when a connection drops.
// Players go offline but stay in the room; spectators are removed.
func (g *gameServer) handleDisconnect(c *client) {
	if c.roomID == "" {
		return
	}
	room, ok := g.rooms.Get(c.roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if c.spectatorID != "" {
		delete(room.spectators, c.spectatorID)
		return
	}

	p, ok := room.players[c.playerID]
	if !ok || p.client != c {
		return
	}

	p.Offline = true
	p.client = nil
	logger.Info("player disconnected",
		zap.String("room", room.RoomID),
		zap.String("player", p.PlayerID))

	room.broadcastPlayers(playerOfflineMsg{
		Type:     "player_offline",
		PlayerID: p.PlayerID,
		Name:     p.Name,
	})

	// Ownership never moves once the room is locked; the original
	// owner reclaims it on reconnect instead.
	if room.Status == RoomWaiting && room.ownerID == p.PlayerID {
		if next := room.succeedOwner(p.PlayerID); next != nil {
			room.broadcastPlayers(ownerChangedMsg{
				Type:         "owner_changed",
				NewOwnerID:   next.PlayerID,
				NewOwnerName: next.Name,
			})
		}
	}

	// An empty lobby has nothing worth keeping.
	if room.Status == RoomWaiting && len(room.activePlayers()) == 0 {
		g.rooms.Delete(room.RoomID)
		logger.Info("empty room removed", zap.String("room", room.RoomID))
		return
	}

	room.broadcastPlayers(syncStateMsg{Type: "sync:state", roomSnapshot: room.snapshot()})
	g.notifySpectatorProgress(room, p)
}

func (g *gameServer) notifySpectatorProgress(room *Room, p *Player) {
	msg := spectatorPlayerStatusMsg{
		Type:           "spectator:player_status",
		PlayerID:       p.PlayerID,
		Name:           p.Name,
		IsOffline:      p.Offline,
		AnsweredCount:  p.answered,
		TotalQuestions: len(p.queue),
	}
	if q := p.currentQuestion(); q != nil && room.Status == RoomScan {
		msg.CurrentSummary = fmt.Sprintf("正在回答與 %s 的關係", q.TargetPlayerName)
	}
	room.broadcastSpectators(msg)
}

// clientPlayer resolves the connection's bound room and player.
func (g *gameServer) clientPlayer(c *client) (*Room, *Player) {
	if c.roomID == "" || c.playerID == "" {
		return nil, nil
	}
	room, ok := g.rooms.Get(c.roomID)
	if !ok {
		return nil, nil
	}
	return room, room.players[c.playerID]
}

func (r *Room) broadcastPlayers(v any) {
	for _, p := range r.players {
		if p.client != nil && !p.Offline {
			p.client.send(v)
		}
	}
}

func (r *Room) broadcastOthers(exceptPlayerID string, v any) {
	for _, p := range r.players {
		if p.PlayerID != exceptPlayerID && p.client != nil && !p.Offline {
			p.client.send(v)
		}
	}
}

func (r *Room) broadcastSpectators(v any) {
	for _, s := range r.spectators {
		if s.client != nil {
			s.client.send(v)
		}
	}
}

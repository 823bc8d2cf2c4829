package coordinator

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/cory-johannsen/argos/internal/content"
	"github.com/cory-johannsen/argos/internal/game"
	"github.com/cory-johannsen/argos/internal/pin"
	"github.com/cory-johannsen/argos/internal/protocol"
)

const reactionReject = "reject"

func (c *Coordinator) handleNewGame(id string) error {
	if info, ok := c.clients[id]; ok && info.role != game.RoleHost {
		return preconditionf("a %s cannot create a game", info.role)
	}

	if n := c.sweepLocked(); n > 0 {
		c.logger.Info("swept stale games", zap.Int("removed", n))
	}

	codes, err := c.pins.Allocate(3)
	if err != nil {
		return fmt.Errorf("creating game: %w", err)
	}
	sid := c.newSecretLocked()

	c.detachHostLocked(id)

	g := game.New(codes[0], codes[2], codes[1], sid, id, c.opts.Clock())
	if err := c.games.Add(g); err != nil {
		for _, code := range codes {
			c.pins.Release(code)
		}
		return err
	}
	c.expected[g.DisplayPin] = expectedPin{Role: game.RoleDisplay, GamePin: g.Pin}
	c.expected[g.ParticipantPin] = expectedPin{Role: game.RoleParticipant, GamePin: g.Pin}
	c.gameBySID[sid] = g.Pin
	c.clients[id] = clientInfo{role: game.RoleHost, gamePin: g.Pin}

	c.send(id, protocol.NewBecomeHost(g))
	c.dumpExpectedPins()
	c.logStats("game created", zap.String("conn_id", id), zap.String("game_pin", g.Pin))
	return nil
}

// newSecretLocked draws session secrets until one is not held by a live game.
func (c *Coordinator) newSecretLocked() string {
	for {
		sid := pin.Secret(c.opts.Secrets, c.opts.SecretLength)
		if _, taken := c.gameBySID[sid]; !taken {
			return sid
		}
	}
}

func (c *Coordinator) handleRejoin(id string, cmd protocol.Rejoin) error {
	info, bound := c.clients[id]
	if bound && info.role != game.RoleHost {
		return preconditionf("a %s cannot rejoin as host", info.role)
	}
	gamePin, ok := c.gameBySID[cmd.SID]
	if !ok {
		return preconditionf("no game for sid")
	}
	g, _ := c.games.Get(gamePin)

	if bound && info.gamePin != g.Pin {
		c.detachHostLocked(id)
	}
	if g.Mod != "" && g.Mod != id {
		// the replaced host connection stays open but unbound
		delete(c.clients, g.Mod)
		c.logger.Info("host replaced by rejoin",
			zap.String("game_pin", g.Pin),
			zap.String("previous_conn_id", g.Mod),
		)
	}
	g.Mod = id
	g.Touch(c.opts.Clock())
	c.clients[id] = clientInfo{role: game.RoleHost, gamePin: g.Pin}

	c.send(id, protocol.NewRejoinWithSID(g))
	c.logger.Info("host rejoined", zap.String("conn_id", id), zap.String("game_pin", g.Pin))
	return nil
}

func (c *Coordinator) handleRedeemPin(id string, cmd protocol.RedeemPin) error {
	if info, ok := c.clients[id]; ok {
		return preconditionf("connection is already a %s", info.role)
	}
	exp, ok := c.expected[cmd.Pin]
	if !ok {
		c.send(id, protocol.NewWrongPin())
		return preconditionf("pin %q is not expected", cmd.Pin)
	}
	g, ok := c.games.Get(exp.GamePin)
	if !ok {
		c.send(id, protocol.NewWrongPin())
		return preconditionf("game %s is gone", exp.GamePin)
	}

	switch exp.Role {
	case game.RoleDisplay:
		if !g.AddDisplay(id) {
			c.send(id, protocol.NewWrongPin())
			return preconditionf("game %s already has a display", g.Pin)
		}
		c.send(id, protocol.NewBecomeDisplay(g.ParticipantPin))
	case game.RoleParticipant:
		g.AddParticipant(id)
		c.send(id, protocol.NewBecomeParticipant())
	}
	c.clients[id] = clientInfo{role: exp.Role, gamePin: g.Pin}
	g.Touch(c.opts.Clock())

	c.sendGameStats(g)
	c.logStats("joined game",
		zap.String("conn_id", id),
		zap.String("game_pin", g.Pin),
		zap.String("role", string(exp.Role)),
	)
	return nil
}

func (c *Coordinator) handleNewTask(id string) error {
	g, err := c.hostGame(id)
	if err != nil {
		return err
	}
	notice := protocol.NewTaskNotice()
	for _, pid := range g.ParticipantIDs() {
		c.send(pid, notice)
	}
	g.StartTask()
	g.Touch(c.opts.Clock())
	c.sendGameStats(g)
	return nil
}

func (c *Coordinator) handleEndTask(id string) error {
	g, err := c.hostGame(id)
	if err != nil {
		return err
	}
	g.EndTask()
	g.Touch(c.opts.Clock())
	c.sendGameStats(g)
	return nil
}

func (c *Coordinator) handleShow(id string, cmd protocol.Show) error {
	g, err := c.hostGame(id)
	if err != nil {
		return err
	}
	if !g.SetShowIndex(cmd.Index) {
		return preconditionf("show index %d out of range [0, %d)", *cmd.Index, len(g.Submissions))
	}
	g.Touch(c.opts.Clock())
	c.sendGameStats(g)
	return nil
}

func (c *Coordinator) handleSubmit(id string, cmd protocol.Submit) error {
	info, ok := c.clients[id]
	if !ok || info.role != game.RoleParticipant {
		return preconditionf("connection is not a participant")
	}
	g, ok := c.games.Get(info.gamePin)
	if !ok {
		return preconditionf("game %s is gone", info.gamePin)
	}
	if c.opts.EnforceTaskRunning && !g.TaskRunning {
		return preconditionf("no task running in game %s", g.Pin)
	}
	data, err := decodePayload(cmd.Payload)
	if err != nil {
		return err
	}

	hash := content.Hash(data)
	_, seen := g.ContentByHash[hash]
	index := g.Submit(hash, cmd.Payload, id)
	g.Touch(c.opts.Clock())
	if !seen && c.sink != nil {
		c.sink.Enqueue(hash, data)
	}

	c.logger.Debug("submission received",
		zap.String("conn_id", id),
		zap.String("game_pin", g.Pin),
		zap.Int("index", index),
		zap.String("hash", hash),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
		zap.Bool("duplicate", seen),
	)

	c.sendGameStats(g)
	if g.Mod != "" {
		c.send(g.Mod, protocol.NewSubmission(cmd.Payload))
	}
	return nil
}

// decodePayload accepts plain base64 or a data URL carrying base64.
func decodePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ";base64,"); i >= 0 {
			payload = payload[i+len(";base64,"):]
		}
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", protocol.ErrMalformed)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
			return data, nil
		}
		return nil, fmt.Errorf("%w: payload is not base64: %v", protocol.ErrMalformed, err)
	}
	return data, nil
}

func (c *Coordinator) handleReact(id string, cmd protocol.React) error {
	g, err := c.hostGame(id)
	if err != nil {
		return err
	}
	if !g.HasSubmission(cmd.Index) {
		return preconditionf("submission %d out of range [0, %d)", cmd.Index, len(g.Submissions))
	}

	if owner, ok := g.Owner(cmd.Index); ok && g.IsParticipant(owner) {
		c.send(owner, protocol.NewReaction(cmd.Reaction))
	} else {
		c.logger.Debug("submission owner gone, reaction not delivered",
			zap.String("game_pin", g.Pin),
			zap.Int("index", cmd.Index),
		)
	}
	g.Touch(c.opts.Clock())

	if cmd.Reaction == reactionReject && g.Reject(cmd.Index) {
		c.sendGameStats(g)
	}
	return nil
}

func (c *Coordinator) handleRemoveGame(id string) error {
	g, err := c.hostGame(id)
	if err != nil {
		return err
	}
	c.removeGameLocked(g, "removed by host")
	c.logStats("game removed by host", zap.String("conn_id", id))
	return nil
}

// sendGameStats pushes the stats snapshot to the host and displays. Only
// displays receive the payload of the shown submission.
func (c *Coordinator) sendGameStats(g *game.Game) {
	stats := g.Stats()
	var showPNG string
	if stats.ShowIndex != nil {
		showPNG, _ = g.Payload(*stats.ShowIndex)
	}
	for _, id := range g.Recipients() {
		if g.IsDisplay(id) {
			c.send(id, protocol.NewGameStats(stats, showPNG))
			continue
		}
		c.send(id, protocol.NewGameStats(stats, ""))
	}
}

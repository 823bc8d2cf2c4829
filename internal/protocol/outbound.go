package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/argos/internal/game"
)

// Greeting is sent once when a connection opens.
type Greeting struct {
	Hello string `json:"hello"`
}

// Welcome answers a client Hello.
type Welcome struct {
	Status string `json:"status"`
}

// BecomeHost confirms a new game to its creator.
type BecomeHost struct {
	Command        string `json:"command"`
	GamePin        string `json:"game_pin"`
	DisplayPin     string `json:"display_pin"`
	ParticipantPin string `json:"participant_pin"`
	SID            string `json:"sid"`
}

// RejoinWithSID is the snapshot a host receives after rebinding with its sid.
type RejoinWithSID struct {
	Command                string   `json:"command"`
	GamePin                string   `json:"game_pin"`
	DisplayPin             string   `json:"display_pin"`
	ParticipantPin         string   `json:"participant_pin"`
	DisplayCount           int      `json:"display_count"`
	ParticipantCount       int      `json:"participant_count"`
	NonRejectedSubmissions int      `json:"non_rejected_submissions"`
	TaskRunning            bool     `json:"task_running"`
	ShowIndex              *int     `json:"show_index"`
	Base64List             []string `json:"base64_list"`
}

// BecomeDisplay confirms a display join and hands over the participant pin
// so the display can render it.
type BecomeDisplay struct {
	Command        string `json:"command"`
	ParticipantPin string `json:"participant_pin"`
}

// Notice is a message that carries only its command name.
type Notice struct {
	Command string `json:"command"`
}

// Submission forwards a participant's payload to the host.
type Submission struct {
	Command string `json:"command"`
	Base64  string `json:"base64"`
}

// Reaction forwards the host's reaction to a submission owner.
type Reaction struct {
	Command  string `json:"command"`
	Reaction string `json:"reaction"`
}

// GameStats is broadcast to the host and displays after every roster or task change.
type GameStats struct {
	Command                string `json:"command"`
	DisplayCount           int    `json:"display_count"`
	ParticipantCount       int    `json:"participant_count"`
	NonRejectedSubmissions int    `json:"non_rejected_submissions"`
	TaskRunning            bool   `json:"task_running"`
	ShowIndex              *int   `json:"show_index"`
	ShowPNG                string `json:"show_png,omitempty"`
}

// NewGreeting returns the connection greeting.
func NewGreeting() Greeting { return Greeting{Hello: "world"} }

// NewWelcome returns the handshake answer.
func NewWelcome() Welcome { return Welcome{Status: "welcome"} }

// NewBecomeHost builds the reply to a successful new game.
func NewBecomeHost(g *game.Game) BecomeHost {
	return BecomeHost{
		Command:        "become_host",
		GamePin:        g.Pin,
		DisplayPin:     g.DisplayPin,
		ParticipantPin: g.ParticipantPin,
		SID:            g.SID,
	}
}

// NewRejoinWithSID builds the full snapshot for a rebinding host.
func NewRejoinWithSID(g *game.Game) RejoinWithSID {
	stats := g.Stats()
	return RejoinWithSID{
		Command:                "rejoin_with_sid",
		GamePin:                g.Pin,
		DisplayPin:             g.DisplayPin,
		ParticipantPin:         g.ParticipantPin,
		DisplayCount:           stats.DisplayCount,
		ParticipantCount:       stats.ParticipantCount,
		NonRejectedSubmissions: stats.NonRejected,
		TaskRunning:            stats.TaskRunning,
		ShowIndex:              stats.ShowIndex,
		Base64List:             g.Payloads(),
	}
}

// NewBecomeDisplay confirms a display join.
func NewBecomeDisplay(participantPin string) BecomeDisplay {
	return BecomeDisplay{Command: "become_display", ParticipantPin: participantPin}
}

// NewBecomeParticipant confirms a participant join.
func NewBecomeParticipant() Notice { return Notice{Command: "become_participant"} }

// NewWrongPin rejects a pin redemption.
func NewWrongPin() Notice { return Notice{Command: "wrong_pin"} }

// NewTaskNotice tells participants a new round has started.
func NewTaskNotice() Notice { return Notice{Command: "new_task"} }

// NewSubmission forwards a payload to the host.
func NewSubmission(payload string) Submission {
	return Submission{Command: "submission", Base64: payload}
}

// NewReaction forwards a reaction to a participant.
func NewReaction(reaction string) Reaction {
	return Reaction{Command: "react", Reaction: reaction}
}

// NewGameStats builds the stats broadcast. showPNG is only set for display recipients.
func NewGameStats(stats game.Stats, showPNG string) GameStats {
	return GameStats{
		Command:                "update_game_stats",
		DisplayCount:           stats.DisplayCount,
		ParticipantCount:       stats.ParticipantCount,
		NonRejectedSubmissions: stats.NonRejected,
		TaskRunning:            stats.TaskRunning,
		ShowIndex:              stats.ShowIndex,
		ShowPNG:                showPNG,
	}
}

// Encode serializes an outbound message into one text frame.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return data, nil
}

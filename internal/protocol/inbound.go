// Package protocol defines the JSON messages exchanged with session clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for frames that cannot be decoded into a command.
var ErrMalformed = errors.New("malformed message")

// Command names as they appear on the wire.
const (
	NameNew        = "new"
	NameSID        = "sid"
	NamePin        = "pin"
	NameNewTask    = "new_task"
	NameEndTask    = "end_task"
	NameShow       = "show"
	NamePNG        = "png"
	NameReact      = "react"
	NameRemoveGame = "remove_game"
	NameHello      = "hello"
)

// Command is one decoded inbound message. The set of implementations is closed.
type Command interface {
	// Name returns the wire name of the command.
	Name() string
	isCommand()
}

// Hello is the client handshake {"hello":"world"}.
type Hello struct{}

// NewGame asks the coordinator to create a game hosted by the sender.
type NewGame struct{}

// Rejoin rebinds the host role of the game holding SID to the sender.
type Rejoin struct {
	SID string
}

// RedeemPin joins the sender to a game as display or participant.
type RedeemPin struct {
	Pin string
}

// NewTask starts a fresh round.
type NewTask struct{}

// EndTask stops accepting submissions.
type EndTask struct{}

// Show selects the submission on display; a nil Index clears it.
type Show struct {
	Index *int
}

// Submit carries a participant's base64 encoded content.
type Submit struct {
	Payload string
}

// React forwards the host's reaction to the owner of a submission.
type React struct {
	Index    int
	Reaction string
}

// RemoveGame tears down the sender's game.
type RemoveGame struct{}

// Unknown is any command name the coordinator does not handle.
type Unknown struct {
	Command string
}

func (Hello) Name() string      { return NameHello }
func (NewGame) Name() string    { return NameNew }
func (Rejoin) Name() string     { return NameSID }
func (RedeemPin) Name() string  { return NamePin }
func (NewTask) Name() string    { return NameNewTask }
func (EndTask) Name() string    { return NameEndTask }
func (Show) Name() string       { return NameShow }
func (Submit) Name() string     { return NamePNG }
func (React) Name() string      { return NameReact }
func (RemoveGame) Name() string { return NameRemoveGame }
func (u Unknown) Name() string  { return u.Command }

func (Hello) isCommand()      {}
func (NewGame) isCommand()    {}
func (Rejoin) isCommand()     {}
func (RedeemPin) isCommand()  {}
func (NewTask) isCommand()    {}
func (EndTask) isCommand()    {}
func (Show) isCommand()       {}
func (Submit) isCommand()     {}
func (React) isCommand()      {}
func (RemoveGame) isCommand() {}
func (Unknown) isCommand()    {}

// Decode parses one inbound frame.
//
// Precondition: maxBytes <= 0 disables the size check.
// Postcondition: Returns a non-nil Command, or an error wrapping ErrMalformed when the
// frame is oversized, is not a JSON object, or carries a field of the wrong type.
// An empty frame decodes to Unknown.
func Decode(data []byte, maxBytes int) (Command, error) {
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrMalformed, len(data), maxBytes)
	}
	if len(data) == 0 {
		return Unknown{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if raw, ok := fields["hello"]; ok {
		var hello string
		if json.Unmarshal(raw, &hello) == nil && hello == "world" {
			return Hello{}, nil
		}
	}

	var name string
	if raw, ok := fields["command"]; ok {
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, fmt.Errorf("%w: command: %v", ErrMalformed, err)
		}
	}

	switch name {
	case NameNew:
		return NewGame{}, nil
	case NameSID:
		var sid string
		if err := optionalField(fields, "sid", &sid); err != nil {
			return nil, err
		}
		return Rejoin{SID: sid}, nil
	case NamePin:
		var pin string
		if err := optionalField(fields, "pin", &pin); err != nil {
			return nil, err
		}
		return RedeemPin{Pin: pin}, nil
	case NameNewTask:
		return NewTask{}, nil
	case NameEndTask:
		return EndTask{}, nil
	case NameShow:
		var index *int
		if err := optionalField(fields, "index", &index); err != nil {
			return nil, err
		}
		return Show{Index: index}, nil
	case NamePNG:
		var payload string
		if err := optionalField(fields, "png", &payload); err != nil {
			return nil, err
		}
		return Submit{Payload: payload}, nil
	case NameReact:
		var index *int
		if err := optionalField(fields, "index", &index); err != nil {
			return nil, err
		}
		if index == nil {
			return nil, fmt.Errorf("%w: react: missing index", ErrMalformed)
		}
		var reaction string
		if err := optionalField(fields, "reaction", &reaction); err != nil {
			return nil, err
		}
		return React{Index: *index, Reaction: reaction}, nil
	case NameRemoveGame:
		return RemoveGame{}, nil
	default:
		return Unknown{Command: name}, nil
	}
}

// optionalField decodes fields[key] into dst when present. An absent key leaves dst untouched.
func optionalField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return nil
}

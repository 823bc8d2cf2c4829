package coordinator

import "fmt"

// HostDisconnectPolicy decides what happens to a game when its host connection closes.
type HostDisconnectPolicy string

const (
	// KeepGame leaves the game running without a host until it rejoins by sid
	// or the stale sweep removes it.
	KeepGame HostDisconnectPolicy = "keep"
	// TeardownGame removes the game as if the host had sent remove_game.
	TeardownGame HostDisconnectPolicy = "teardown"
)

// ParseHostDisconnectPolicy maps a configuration value to a policy.
func ParseHostDisconnectPolicy(s string) (HostDisconnectPolicy, error) {
	switch p := HostDisconnectPolicy(s); p {
	case KeepGame, TeardownGame:
		return p, nil
	case "":
		return KeepGame, nil
	default:
		return "", fmt.Errorf("unknown host disconnect policy %q", s)
	}
}

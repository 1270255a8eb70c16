package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Snapshot is the raw payload returned by the upstream status provider for
// one resolution attempt. Its shape varies by edition and query mode; Online
// and Players are pointers so that a partial payload can be told apart from
// an offline server.
type Snapshot struct {
	Online   *bool            `json:"online"`
	Players  *SnapshotPlayers `json:"players"`
	Motd     *Motd            `json:"motd"`
	Version  *string          `json:"version"`
	Host     string           `json:"host"`
	Port     SnapshotPort     `json:"port"`
	Protocol int              `json:"protocol"`

	// java
	Software *string `json:"software"`
	Favicon  *string `json:"favicon"`
	Ping     *int64  `json:"ping"`

	// java query mode
	IP      *string  `json:"ip"`
	Plugins []string `json:"plugins"`
	Map     *string  `json:"map"`

	// bedrock
	Edition  *string `json:"edition"`
	Gamemode *string `json:"gamemode"`
	GUID     *string `json:"guid"`
}

// SnapshotPlayers is the player block of a snapshot. List is only filled by
// some providers and is never persisted.
type SnapshotPlayers struct {
	Online *int     `json:"online"`
	Max    *int     `json:"max"`
	List   []string `json:"list,omitempty"`
}

// SnapshotPort accepts either a plain number (Java) or an {"ipv4", "ipv6"}
// object (Bedrock).
type SnapshotPort struct {
	IPv4 int `json:"ipv4"`
	IPv6 int `json:"ipv6"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *SnapshotPort) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = SnapshotPort{}
		return nil
	}

	if data[0] == '{' {
		type plain SnapshotPort
		var v plain
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("port object: %w", err)
		}
		*p = SnapshotPort(v)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("port number: %w", err)
	}
	*p = SnapshotPort{IPv4: n}
	return nil
}

// MarshalJSON implements json.Marshaler, emitting a plain number when only
// the IPv4 port is known.
func (p SnapshotPort) MarshalJSON() ([]byte, error) {
	if p.IPv6 == 0 {
		return json.Marshal(p.IPv4)
	}
	type plain SnapshotPort
	return json.Marshal(plain(p))
}

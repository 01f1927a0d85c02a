package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// RoomPreset fixes the stake bounds and round duration for a room.
type RoomPreset struct {
	ID         string   `toml:"id"`
	MinStake   int64    `toml:"min_stake"`
	MaxStake   int64    `toml:"max_stake"`
	MaxPlayers int      `toml:"max_players"`
	Duration   Duration `toml:"duration"`
}

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type roomsFile struct {
	Rooms []RoomPreset `toml:"room"`
}

// DefaultRoomID is used when a round is opened without naming a room.
const DefaultRoomID = "default"

var defaultRooms = []RoomPreset{
	{ID: DefaultRoomID, MinStake: 10, MaxStake: 100, MaxPlayers: 10, Duration: Duration{2 * time.Minute}},
}

// LoadRooms reads [[room]] tables from path; an empty path yields the built-in default room.
func LoadRooms(path string) ([]RoomPreset, error) {
	if path == "" {
		return append([]RoomPreset(nil), defaultRooms...), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms config: %w", err)
	}
	return ParseRooms(string(b))
}

func ParseRooms(raw string) ([]RoomPreset, error) {
	var f roomsFile
	if _, err := toml.Decode(raw, &f); err != nil {
		return nil, fmt.Errorf("parse rooms config: %w", err)
	}
	if len(f.Rooms) == 0 {
		return nil, &ConfigurationError{Field: "ROOMS_CONFIG_PATH", Reason: "no [[room]] entries"}
	}
	seen := make(map[string]struct{}, len(f.Rooms))
	for _, r := range f.Rooms {
		if r.ID == "" {
			return nil, &ConfigurationError{Field: "room.id", Reason: "required"}
		}
		if _, ok := seen[r.ID]; ok {
			return nil, &ConfigurationError{Field: "room.id", Reason: "duplicate " + r.ID}
		}
		seen[r.ID] = struct{}{}
		if r.MinStake <= 0 || r.MaxStake < r.MinStake {
			return nil, &ConfigurationError{Field: "room." + r.ID, Reason: "invalid stake bounds"}
		}
		if r.Duration.Duration <= 0 {
			return nil, &ConfigurationError{Field: "room." + r.ID, Reason: "duration must be positive"}
		}
	}
	return f.Rooms, nil
}

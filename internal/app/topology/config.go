package topology

import (
	"fmt"
	"io"

	"github.com/spf13/viper"
)

// File is the on-disk shape of the topology.
type File struct {
	Areas []AreaConfig `mapstructure:"areas"`
}

// AreaConfig describes one area.
type AreaConfig struct {
	ID          string       `mapstructure:"id"`
	DefaultRoom string       `mapstructure:"default_room"`
	Rooms       []RoomConfig `mapstructure:"rooms"`
}

// RoomConfig describes one room.
type RoomConfig struct {
	ID          string          `mapstructure:"id"`
	Width       int             `mapstructure:"width"`
	Height      int             `mapstructure:"height"`
	SpawnDoor   string          `mapstructure:"spawn_door"`
	StreamSlots int             `mapstructure:"stream_slots"`
	Anonymous   bool            `mapstructure:"anonymous"`
	Blocked     []Point         `mapstructure:"blocked"`
	Forbidden   []Transition    `mapstructure:"forbidden"`
	Seats       []Point         `mapstructure:"seats"`
	Doors       []Door          `mapstructure:"doors"`
	Transforms  []TransformTile `mapstructure:"transforms"`
}

// Load reads a topology file. The format follows the file extension (yaml, json, toml).
func Load(path string) (*Topology, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}

	return decode(v)
}

// Parse reads a topology of the given format ("yaml", "json") from r.
func Parse(r io.Reader, format string) (*Topology, error) {
	v := viper.New()
	v.SetConfigType(format)

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Topology, error) {
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}
	return Build(f)
}

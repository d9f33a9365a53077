package chat

import "time"

// StreamSpeed controls how fast replies are revealed.
type StreamSpeed int

const (
	StreamInstant StreamSpeed = iota
	StreamFast
	StreamNormal
)

var speedNames = map[StreamSpeed]string{
	StreamInstant: "instant",
	StreamFast:    "fast",
	StreamNormal:  "normal",
}

func (s StreamSpeed) String() string {
	if name, ok := speedNames[s]; ok {
		return name
	}
	return "unknown"
}

// StreamConfig is the rune chunk size and tick rate of progressive rendering.
type StreamConfig struct {
	Speed     StreamSpeed
	ChunkSize int
	TickRate  time.Duration
}

// StreamConfigForSpeed returns the preset for s. Unknown speeds are normal.
func StreamConfigForSpeed(s StreamSpeed) StreamConfig {
	switch s {
	case StreamInstant:
		return StreamConfig{Speed: StreamInstant}
	case StreamFast:
		return StreamConfig{Speed: StreamFast, ChunkSize: 32, TickRate: 16 * time.Millisecond}
	default:
		return StreamConfig{Speed: StreamNormal, ChunkSize: 8, TickRate: 16 * time.Millisecond}
	}
}

// CycleStreamSpeed goes normal, fast, instant, then back to normal.
func CycleStreamSpeed(current StreamSpeed) StreamSpeed {
	switch current {
	case StreamNormal:
		return StreamFast
	case StreamFast:
		return StreamInstant
	default:
		return StreamNormal
	}
}

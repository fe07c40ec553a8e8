package brainwash

import "errors"

// Structural errors returned by module graph mutations. The graph is left
// unchanged whenever one of these is returned.
var (
	ErrUnknownModuleKind       = errors.New("unknown module kind")
	ErrPortIndexOutOfRange     = errors.New("port index out of range")
	ErrPortAlreadyOccupied     = errors.New("port already occupied")
	ErrWouldCreateInvalidCycle = errors.New("connection would create a cycle without a delay-bearing module")
	ErrPortClosed              = errors.New("port is closed")
	ErrUnknownNode             = errors.New("unknown node")
)

// ErrNoFreeOrStealableVoice is returned when a voice pool is created without
// voices. With at least one voice, stealing always finds a voice to reuse.
var ErrNoFreeOrStealableVoice = errors.New("no free or stealable voice")

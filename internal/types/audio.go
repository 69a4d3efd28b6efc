package types

import "fmt"

// AudioSpec describes a PCM stream layout
type AudioSpec struct {
	Channels   int
	SampleRate int
	// BitDepth is the sample width in bits
	BitDepth int
}

// CanonicalSpec is the only layout the recognition engine accepts
var CanonicalSpec = AudioSpec{Channels: 1, SampleRate: 16000, BitDepth: 16}

// Matches reports whether s equals other field by field
func (s AudioSpec) Matches(other AudioSpec) bool {
	return s == other
}

// BytesPerSample returns the frame size in bytes for one sample across all channels
func (s AudioSpec) BytesPerSample() int {
	return s.Channels * s.BitDepth / 8
}

func (s AudioSpec) String() string {
	return fmt.Sprintf("%dch/%dHz/%dbit", s.Channels, s.SampleRate, s.BitDepth)
}

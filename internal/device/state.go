package device

// Shared is the audio-rate part of a processor's device state: the
// parameters every thread state reads without duplication (spec.md §3
// "Device state"). Each AU.Processors entry owns one Shared, updated by
// the player on rate/buffer-size/tempo changes.
type Shared struct {
	SampleRate int
	BufferSize int
	TempoBPM   float64
}

// ThreadState is a processor's per-thread scratch: its own work buffers
// (addressed via PortBuffers) and the three-state graph-planner marker
// (spec.md §3). thread_count > 1 gives each worker its own ThreadState.
type ThreadState struct {
	Marker Marker
}

package kunquat

import (
	"fmt"
	"log"

	jsoniter "github.com/json-iterator/go"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/event"
	"github.com/kagu/kunquat/internal/kerr"
	"github.com/kagu/kunquat/internal/player"
	"github.com/kagu/kunquat/internal/position"
	"github.com/kagu/kunquat/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func trackStart(track int) position.Pos { return position.Pos{Track: track} }

// Handle is the public render-core entry point spec.md §6 names: it owns
// one composition's data store, its assembled Player, and handle-local
// error state (spec.md §9 "there is no process-global fallback").
type Handle struct {
	Store    *store.Store
	Player   *player.Player
	Registry *event.Registry

	voiceCount int
	lastErr    *kerr.Error

	tracks []*position.Track
}

// NewHandle constructs a handle at the given audio rate, block size and
// voice pool capacity (spec.md §6 "new_handle(audio_rate, buffer_size,
// voice_count)"). Channel count is fixed at 64 per §6's data key surface.
func NewHandle(audioRate, bufferSize, voiceCount int) (*Handle, error) {
	if audioRate <= 0 || bufferSize <= 0 || voiceCount <= 0 {
		return nil, kerr.New(kerr.Argument, "new_handle: audio_rate, buffer_size and voice_count must be positive")
	}
	h := &Handle{
		Store:      store.New(),
		Player:     player.New(audioRate, 120, 64, voiceCount),
		Registry:   BuildRegistry(),
		voiceCount: voiceCount,
	}
	h.Player.SetTracks(nil)
	h.Player.Status = player.Stopped
	log.Printf("kunquat: new handle, rate=%d buffer=%d voices=%d", audioRate, bufferSize, voiceCount)
	return h, nil
}

// SetData installs a named resource under key, validating its index
// range (spec.md §6 "set_data(handle, key, bytes)"). Interpreting the
// serialized module format into a playable composition is the module-file
// loader's job (spec.md §1 non-goal); this handle exposes SetInstrument /
// SetMixedGraph / SetTracks directly for callers (the cmd driver, tests)
// that assemble a composition programmatically instead.
func (h *Handle) SetData(key string, value []byte) error {
	if err := h.Store.Set(key, value); err != nil {
		h.setErr(err)
		return err
	}
	return nil
}

// SetInstrument registers one instrument AU's processors and connections,
// building its voice-signal plan (spec.md §4.5).
func (h *Handle) SetInstrument(auID int, cons []device.Connection, procs []device.Processor) error {
	if err := h.Player.SetInstrument(auID, cons, procs); err != nil {
		h.setErr(err)
		return err
	}
	return nil
}

// SetMixedGraph builds the module-wide mixed-signal plan (spec.md §4.4).
func (h *Handle) SetMixedGraph(cons []device.Connection, procsByID map[int]device.Processor) error {
	if err := h.Player.SetMixedGraph(cons, procsByID); err != nil {
		h.setErr(err)
		return err
	}
	return nil
}

// BindChannel assigns the audio unit a channel's note-on events target
// (the "channel control map" of spec.md §8 Scenario B).
func (h *Handle) BindChannel(ch, auID int) error {
	if ch < 0 || ch >= len(h.Player.Channels) {
		err := kerr.New(kerr.Argument, "bind_channel: channel %d out of range", ch)
		h.setErr(err)
		return err
	}
	h.Player.Channels[ch].AUInput = auID
	return nil
}

// SetTracks installs the composition's track list and resets the cursor
// (normally populated by the loader from the data store; exposed directly
// here for the same reason SetData's decode boundary is).
func (h *Handle) SetTracks(tracks []*position.Track) {
	h.tracks = tracks
	h.Player.SetTracks(tracks)
}

// Validate finalises the load: it validates the bind graph for cycles
// (spec.md §4.2 point 2) and connects the dispatcher to the player. A
// format error leaves the handle usable but causes rendering to produce
// silence (spec.md §7 point 2), matching BindTable.Validate's contract.
func (h *Handle) Validate(binds *event.BindTable) error {
	if binds != nil {
		if err := binds.Validate(); err != nil {
			ferr := kerr.New(kerr.Format, "validate: %v", err)
			h.setErr(ferr)
			return ferr
		}
	}
	h.Player.Dispatcher = event.NewDispatcher(h.Registry, binds)
	// Pattern-scheduled triggers (dispatchDue) need the same per-target
	// context as externally fired ones (dispatchExternal); without this,
	// every handler but note-on/note-off panics on a nil-context type
	// assertion the moment a pattern places an au/master/control/general
	// event instead of a channel one.
	h.Player.CtxFor = func(t event.Target) interface{} {
		return &dispatchCtx{P: h.Player, Ch: t.Channel}
	}
	h.Player.Dispatcher.CacheLookup = func(channel int, name string) (event.Arg, bool) {
		if channel < 0 || channel >= len(h.Player.Channels) {
			return event.Arg{}, false
		}
		v, ok := h.Player.Channels[channel].CachedArg(name)
		if !ok {
			return event.Arg{}, false
		}
		return v.(event.Arg), true
	}
	h.Player.Dispatcher.CacheStore = func(channel int, name string, arg event.Arg) {
		if channel < 0 || channel >= len(h.Player.Channels) {
			return
		}
		h.Player.Channels[channel].CacheEvent(name, arg)
	}
	return nil
}

// SetAudioRate changes the render sample rate; in-flight sliders rescale
// (spec.md §6, §4.6).
func (h *Handle) SetAudioRate(rate int) {
	h.Player.SampleRate = rate
	for _, ch := range h.Player.Channels {
		ch.SetSampleRate(rate)
	}
	h.Player.Master.Volume.SetSampleRate(rate)
}

// SetAudioBufferSize is accepted for API completeness; this renderer has
// no fixed internal block size beyond what Play's caller requests.
func (h *Handle) SetAudioBufferSize(int) {}

// SetThreadCount is accepted for API completeness; worker-pool
// parallelisation (spec.md §5) is an optional execution strategy over the
// same plans and is not required for correctness, so this single-
// threaded port always renders on the caller's goroutine.
func (h *Handle) SetThreadCount(n int) {
	if n < 1 {
		n = 1
	}
}

// eventArgJSON is the wire shape of fire()'s event argument (spec.md §6
// "Events serialize as [ \"<name>\", <arg> ]").
type eventArgJSON struct {
	Name string
	Arg  jsoniter.RawMessage
}

// Fire decodes and dispatches one external trigger (spec.md §6
// "fire(handle, channel, event_json)"). A malformed payload or unknown
// event name is an ARGUMENT error that drops the event without affecting
// the rest of the block (spec.md §7 point 1).
func (h *Handle) Fire(channel int, eventJSON string) error {
	var raw []jsoniter.RawMessage
	if err := json.UnmarshalFromString(eventJSON, &raw); err != nil || len(raw) != 2 {
		err := kerr.New(kerr.Argument, "fire: malformed event json %q", eventJSON)
		h.setErr(err)
		return err
	}
	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		err := kerr.New(kerr.Argument, "fire: event name must be a string")
		h.setErr(err)
		return err
	}
	desc, _, ok := h.Registry.Lookup(name)
	if !ok {
		err := kerr.New(kerr.Argument, "fire: unknown event %q", name)
		h.setErr(err)
		return err
	}
	arg, err := decodeArg(desc.Arg, raw[1])
	if err != nil {
		h.setErr(err)
		return err
	}
	target := event.Target{Channel: channel}
	ev := event.Event{Name: name, Arg: arg, Target: target}
	h.dispatchExternal(ev)
	return nil
}

func decodeArg(kind event.ArgKind, raw jsoniter.RawMessage) (event.Arg, error) {
	switch kind {
	case event.ArgNone:
		return event.Arg{Kind: event.ArgNone}, nil
	case event.ArgBool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return event.Arg{}, kerr.New(kerr.Argument, "event argument must be bool")
		}
		return event.Arg{Kind: event.ArgBool, Bool: v}, nil
	case event.ArgInt:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return event.Arg{}, kerr.New(kerr.Argument, "event argument must be int")
		}
		return event.Arg{Kind: event.ArgInt, Int: v}, nil
	case event.ArgFloat:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return event.Arg{}, kerr.New(kerr.Argument, "event argument must be float")
		}
		return event.Arg{Kind: event.ArgFloat, Float: v}, nil
	case event.ArgString, event.ArgMaybeString:
		if kind == event.ArgMaybeString && string(raw) == "null" {
			return event.Arg{Kind: kind, Valid: false}, nil
		}
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			return event.Arg{Kind: kind, String: v, Valid: true}, nil
		}
		if kind == event.ArgMaybeString {
			return event.Arg{Kind: kind, Valid: false}, nil
		}
		return event.Arg{}, kerr.New(kerr.Argument, "event argument must be string")
	default:
		return event.Arg{}, kerr.New(kerr.Argument, "unsupported argument kind %d for fire()", kind)
	}
}

// dispatchExternal runs ev through the same dispatch path the render loop
// uses for pattern-scheduled triggers (spec.md §5 "A voice allocated
// during event dispatch is visible to the same block's voice-signal
// execution" applies equally to an externally fired note).
func (h *Handle) dispatchExternal(ev event.Event) {
	if h.Player.Dispatcher == nil {
		h.logWarn("fire: handle not validated")
		return
	}
	queue := []event.Event{ev}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		produced, err := h.Player.Dispatcher.Dispatch(cur, h.Player.CtxFor)
		if err != nil {
			h.logWarn(err.Error())
			continue
		}
		queue = append(queue, produced...)
	}
}

// logWarn records a diagnostic visible through GetEvents (spec.md §7
// "logs them into the event buffer").
func (h *Handle) logWarn(reason string) {
	h.Player.Events = append(h.Player.Events, "!warn "+reason)
}

func (h *Handle) setErr(err error) {
	if e, ok := err.(*kerr.Error); ok {
		h.lastErr = e
	} else {
		h.lastErr = kerr.New(kerr.Argument, "%v", err)
	}
}

// GetError returns the handle's last error message, retrievable until the
// next call that resets it (spec.md §6 "retrievable with get_error until
// next call resets it"). Play and Reset clear it; the other methods leave
// an earlier error in place when they succeed.
func (h *Handle) GetError() string {
	if h.lastErr == nil {
		return ""
	}
	return h.lastErr.Error()
}

// clearErr is called by Play and Reset; it is not called by the other
// public operations.
func (h *Handle) clearErr() { h.lastErr = nil }

// Play renders up to frameCount frames and returns them as interleaved LR
// float64 samples (spec.md §6 "play(handle, frame_count)",
// "get_audio(handle) -> float*"). Unlike the C API this returns the
// buffer directly instead of requiring a separate get_audio call, which
// is the idiomatic Go shape for a pull-mode renderer with no persistent
// cross-call output buffer.
func (h *Handle) Play(frameCount int) []float64 {
	out := make([]float64, frameCount*2)
	h.Player.Render(frameCount, out)
	h.clearErr()
	return out
}

// GetFramesAvailable always returns 0 in this port: Play returns its full
// output directly, so no rendered frames are left buffered for a later
// read. Kept for API-surface parity with spec.md §6.
func (h *Handle) GetFramesAvailable() int { return 0 }

// GetEvents drains and returns the accumulated event-report buffer as a
// JSON array of ["!warn", "reason"]-shaped entries (spec.md §6, §7).
func (h *Handle) GetEvents() string {
	events := h.Player.Events
	h.Player.Events = nil
	out := make([][2]string, 0, len(events))
	for _, e := range events {
		out = append(out, [2]string{"!warn", e})
	}
	data, err := json.MarshalToString(out)
	if err != nil {
		return "[]"
	}
	return data
}

// Reset returns the player to track_num's start with every voice cut
// (spec.md §6 "reset(handle, track_num); has_stopped(handle)").
func (h *Handle) Reset(trackNum int) {
	h.Player.Reset(h.tracks)
	if trackNum > 0 && trackNum < len(h.tracks) {
		h.Player.Cursor.Goto(trackStart(trackNum))
	}
	h.clearErr()
}

// HasStopped reports whether the player has reached STOPPED (spec.md §4.7
// "the player transitions to STOPPED; further render calls return silence
// until reset").
func (h *Handle) HasStopped() bool { return h.Player.Status == player.Stopped }

// DelHandle releases the handle's resources. Go's garbage collector owns
// the memory; this exists only to round out the API surface spec.md §6
// names (del_handle(handle)) for callers porting C-shaped code.
func (h *Handle) DelHandle() {}

// DroppedNotes returns the voice pool's observable drop counter (spec.md
// §7 point 4 "recorded as an observable statistic").
func (h *Handle) DroppedNotes() uint64 { return h.Player.Voices.Stats.DroppedNotes }

// VoiceCount reports the handle's configured voice pool capacity.
func (h *Handle) VoiceCount() int { return h.voiceCount }

func (h *Handle) String() string {
	return fmt.Sprintf("Handle(rate=%d, voices=%d)", h.Player.SampleRate, h.voiceCount)
}

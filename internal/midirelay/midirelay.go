// Package midirelay adapts real MIDI input into the public handle API,
// a second external control-surface collaborator alongside oscremote
// (spec.md §1's "event control surface"). It is grounded on the teacher's
// internal/midiconnector: the same mutex-guarded open/close device
// lifecycle, applied to MIDI input ports instead of output ports (the
// teacher's package only ever drove outboard gear).
package midirelay

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"log"

	"github.com/kagu/kunquat/internal/kunquat"
	"github.com/kagu/kunquat/internal/pitch"
)

// Relay listens on one MIDI input port and fires note-on/off and
// control-change messages into a kunquat.Handle.
type Relay struct {
	Handle *kunquat.Handle
	// Channel selects which handle channel incoming MIDI note/CC messages
	// target; MIDI's own 16 channels are not modelled 1:1 onto the
	// handle's 64 channels, matching spec.md §3's "Channel ... 0..N-1
	// identical mutable contexts" rather than MIDI's fixed 16.
	Channel int

	mu   sync.Mutex
	in   drivers.In
	stop func()
}

// Devices lists available MIDI input port names (midiconnector.Devices'
// role, for input ports instead of output).
func Devices() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// Open binds the relay to the named MIDI input port and starts listening
// in the background, translating messages into h.Fire calls until
// Close is called.
func (r *Relay) Open(portName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, err := midi.FindInPort(portName)
	if err != nil {
		return fmt.Errorf("midirelay: find input port %q: %w", portName, err)
	}
	stop, err := midi.ListenTo(in, r.onMessage)
	if err != nil {
		return fmt.Errorf("midirelay: listen on %q: %w", portName, err)
	}
	r.in = in
	r.stop = stop
	log.Printf("midirelay: listening on %q, relaying to channel %d", portName, r.Channel)
	return nil
}

// Close stops listening and releases the input port.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

// onMessage decodes one incoming MIDI message and relays it as the
// matching Fire call: note-on becomes "n+" with the MIDI note converted
// to Hz (pitch.MidiToHz), note-off becomes "n-", and control-change 1
// (mod wheel) becomes the "cs" control-stream event (spec.md §4.6).
func (r *Relay) onMessage(msg midi.Message, _ int32) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			r.fireNoteOff()
			return
		}
		hz := pitch.MidiToHz(float64(key))
		if err := r.Handle.Fire(r.Channel, fmt.Sprintf("[\"n+\",%g]", hz)); err != nil {
			log.Printf("midirelay: note-on %s (%gHz): %v", pitch.MidiToNoteName(int(key)), hz, err)
		}
	case msg.GetNoteOff(&ch, &key, &vel):
		r.fireNoteOff()
	case msg.GetControlChange(&ch, &cc, &val):
		if cc != 1 {
			return
		}
		level := float64(val) / 127.0
		if err := r.Handle.Fire(r.Channel, fmt.Sprintf("[\"cs\",%g]", level)); err != nil {
			log.Printf("midirelay: control-change %d: %v", cc, err)
		}
	}
}

func (r *Relay) fireNoteOff() {
	if err := r.Handle.Fire(r.Channel, `["n-",null]`); err != nil {
		log.Printf("midirelay: note-off: %v", err)
	}
}

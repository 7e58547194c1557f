// Package pitch converts between MIDI note numbers, note names and the
// Hz pitch values spec.md's voice.State.Pitch and event arguments carry.
// Adapted from the teacher's internal/music (MidiToNoteName): the naming
// table is unchanged, but the frequency conversion is new, since the
// teacher's sampler never needed Hz, only display names.
package pitch

import (
	"fmt"
	"math"
	"strings"
)

// ReferenceMIDINote is the MIDI note whose frequency is ReferenceHz (A4).
const ReferenceMIDINote = 69

// ReferenceHz is the standard concert pitch for ReferenceMIDINote.
const ReferenceHz = 440.0

// MidiToHz converts a MIDI note number (fractional allowed, for pitch
// bend / microtuning) to a frequency in Hz using equal temperament.
func MidiToHz(midiNote float64) float64 {
	return ReferenceHz * math.Pow(2, (midiNote-ReferenceMIDINote)/12)
}

// HzToMidi is MidiToHz's inverse.
func HzToMidi(hz float64) float64 {
	if hz <= 0 {
		return 0
	}
	return ReferenceMIDINote + 12*math.Log2(hz/ReferenceHz)
}

var noteNames = []string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}

// MidiToNoteName converts a MIDI note number (0-127) to a note name like
// "c-1" or "c#4", exactly as the teacher's music.MidiToNoteName did: sharp
// notes drop the minus, natural notes with a negative octave keep it, all
// names stay three characters.
func MidiToNoteName(midiNote int) string {
	if midiNote < 0 || midiNote > 127 {
		return "---"
	}
	octave := (midiNote / 12) - 1
	name := noteNames[midiNote%12]
	if strings.Contains(name, "#") {
		if octave < 0 {
			return fmt.Sprintf("%s%d", name, -octave)
		}
		return fmt.Sprintf("%s%d", name, octave)
	}
	if octave < 0 {
		return fmt.Sprintf("%s-%d", name, -octave)
	}
	return fmt.Sprintf("%s-%d", name, octave)
}

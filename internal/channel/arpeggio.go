package channel

// Scale constrains arpeggio tone selection to a named set of semitone
// offsets within an octave. Adapted from the teacher's
// internal/modulation.Scales table, which listed the same scales for the
// editor's randomized-note "modulate" feature; here the table drives
// spec.md §4.6's arpeggio tone selection instead of UI note-randomization.
type Scale struct {
	Name  string
	Notes []int
}

// Scales mirrors the teacher's modulation.Scales set verbatim, since the
// musical content (which semitones belong to "minor", "dorian", etc.) is
// domain knowledge, not UI-specific.
var Scales = map[string]Scale{
	"all":        {"All Notes", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	"major":      {"Major", []int{0, 2, 4, 5, 7, 9, 11}},
	"minor":      {"Minor", []int{0, 2, 3, 5, 7, 8, 10}},
	"dorian":     {"Dorian", []int{0, 2, 3, 5, 7, 9, 10}},
	"mixolydian": {"Mixolydian", []int{0, 2, 4, 5, 7, 9, 10}},
	"pentatonic": {"Pentatonic", []int{0, 2, 4, 7, 9}},
	"blues":      {"Blues", []int{0, 3, 5, 6, 7, 10}},
	"chromatic":  {"Chromatic", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
}

// ArpeggioSemitoneOffset quantizes a raw semitone offset into the nearest
// scale degree at or below it, wrapping at the octave. An unknown scale
// name behaves as "chromatic" (no quantization).
func ArpeggioSemitoneOffset(scaleName string, rawSemitones int) int {
	scale, ok := Scales[scaleName]
	if !ok || len(scale.Notes) == 0 {
		return rawSemitones
	}
	octave := rawSemitones / 12
	within := rawSemitones % 12
	if within < 0 {
		within += 12
		octave--
	}
	best := scale.Notes[0]
	for _, n := range scale.Notes {
		if n <= within {
			best = n
		}
	}
	return octave*12 + best
}

// ArpeggioOffset returns the channel's current arpeggio pitch offset in
// semitones for tone index idx (0 or 1, per ArpeggioTones), applied on
// top of a voice's base pitch while ArpeggioOn is set (spec.md §4.6
// "superimposed LFO"; the arpeggio is the same carried-control-stream
// shape, stepped at ArpeggioSpeed instead of continuously).
func (ch *Channel) ArpeggioOffset(idx int) float64 {
	if !ch.ArpeggioOn || idx < 0 || idx > 1 {
		return 0
	}
	return float64(ArpeggioSemitoneOffset(ch.ArpeggioScale, int(ch.ArpeggioTones[idx])))
}

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArpeggioSemitoneOffsetChromaticIsIdentity(t *testing.T) {
	for _, raw := range []int{-13, -1, 0, 1, 11, 13, 25} {
		assert.Equal(t, raw, ArpeggioSemitoneOffset("chromatic", raw))
	}
}

func TestArpeggioSemitoneOffsetQuantizesDownToScaleDegree(t *testing.T) {
	assert.Equal(t, 0, ArpeggioSemitoneOffset("major", 1))
	assert.Equal(t, 5, ArpeggioSemitoneOffset("major", 6))
	assert.Equal(t, 12, ArpeggioSemitoneOffset("major", 12))
}

func TestArpeggioSemitoneOffsetWrapsNegativeOctave(t *testing.T) {
	assert.Equal(t, -1, ArpeggioSemitoneOffset("major", -1))
	assert.Equal(t, -7, ArpeggioSemitoneOffset("major", -7))
}

func TestArpeggioSemitoneOffsetUnknownScaleIsChromatic(t *testing.T) {
	assert.Equal(t, 7, ArpeggioSemitoneOffset("nonexistent", 7))
}

func TestChannelArpeggioOffsetOnlyWhenOn(t *testing.T) {
	ch := New(0)
	ch.ArpeggioTones = [2]float64{0, 7}
	ch.ArpeggioScale = "chromatic"

	assert.Equal(t, 0.0, ch.ArpeggioOffset(0))

	ch.ArpeggioOn = true
	assert.Equal(t, 0.0, ch.ArpeggioOffset(0))
	assert.Equal(t, 7.0, ch.ArpeggioOffset(1))
	assert.Equal(t, 0.0, ch.ArpeggioOffset(2))
}

// Package music converts between textual key labels and pitch-class/mode pairs.
//
// Pitch classes follow the 12-tone circle with C = 0. Mode is 0 for minor and 1 for major.
package music

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

var pitchClasses = map[string]int{
	"C":  0,
	"B#": 0,
	"C#": 1,
	"Db": 1,
	"D":  2,
	"D#": 3,
	"Eb": 3,
	"E":  4,
	"Fb": 4,
	"F":  5,
	"E#": 5,
	"F#": 6,
	"Gb": 6,
	"G":  7,
	"G#": 8,
	"Ab": 8,
	"A":  9,
	"A#": 10,
	"Bb": 10,
	"B":  11,
	"Cb": 11,
}

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParseKey maps a pitch label and a scale label to a pitch class and mode.
//
// Pitch labels are case-insensitive. A trailing "m" accidental is read as a sharp.
// Any scale label containing "minor" is minor; everything else, including an empty label, is major.
// Unknown pitch labels return an error wrapping [shared.ErrParseFailure].
func ParseKey(pitch, scale string) (key, mode int, err error) {
	label := normalizePitch(pitch)
	key, ok := pitchClasses[label]
	if !ok {
		return 0, 0, fmt.Errorf("%w: pitch %q", shared.ErrParseFailure, pitch)
	}
	return key, ParseMode(scale), nil
}

// ParseMode returns [models.ModeMinor] when scale mentions "minor", [models.ModeMajor] otherwise.
func ParseMode(scale string) int {
	if strings.Contains(strings.ToLower(strings.TrimSpace(scale)), "minor") {
		return models.ModeMinor
	}
	return models.ModeMajor
}

// normalizePitch upper-cases the note letter, lower-cases the accidental and rewrites an "m" accidental to "#".
func normalizePitch(pitch string) string {
	runes := []rune(strings.TrimSpace(pitch))
	if len(runes) == 0 {
		return ""
	}

	runes[0] = unicode.ToUpper(runes[0])
	for i := 1; i < len(runes); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	if len(runes) == 2 && runes[1] == 'm' {
		runes[1] = '#'
	}
	return string(runes)
}

// PitchName renders a key as "C# major" / "A minor".
//
// A negative key renders as "Unknown"; a mode outside 0/1 renders the note alone.
func PitchName(key, mode int) string {
	if key < 0 {
		return "Unknown"
	}
	name := pitchNames[key%12]
	switch mode {
	case models.ModeMajor:
		return name + " major"
	case models.ModeMinor:
		return name + " minor"
	default:
		return name
	}
}

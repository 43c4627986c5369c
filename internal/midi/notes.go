package midi

import "fmt"

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the scientific pitch name of a note number, with middle C
// (60) as "C4". Numbers outside 0-127 yield "Invalid".
func NoteName(note int) string {
	if note < 0 || note > 127 {
		return "Invalid"
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], note/12-1)
}

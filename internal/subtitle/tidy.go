package subtitle

import (
	"regexp"
	"strings"
)

// SignPrefix marks on-screen text that is not spoken dialogue.
const SignPrefix = "[Sign] "

var (
	// Rectangle draw command left behind by styled subtitle extraction,
	// optionally behind override tags such as {=12} or {\an7}.
	backgroundPattern = regexp.MustCompile(`^(?:\{[^}]*\}\s*)*m 0 0 l 0 \d{1,3} l \d{1,3} \d{1,3} l \d{1,3} 0$`)
	signTagPattern    = regexp.MustCompile(`\{=\d+\}`)
)

// IsBackground reports whether text is a graphic overlay rather than a
// caption.
func IsBackground(text string) bool {
	return backgroundPattern.MatchString(strings.TrimSpace(text))
}

// RemoveBackgrounds drops overlay cues.
func RemoveBackgrounds(cues []Cue) []Cue {
	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if IsBackground(c.Text) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// MergeAdjacent joins a cue into the previous surviving cue when the text is
// identical and the previous end equals this start exactly.
func MergeAdjacent(cues []Cue) []Cue {
	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Text == c.Text && last.Time.End == c.Time.Start {
				last.Time.End = c.Time.End
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// MarkSign strips style tags from text and prefixes it with SignPrefix.
// Text without tags is returned unchanged.
func MarkSign(text string) string {
	if !signTagPattern.MatchString(text) {
		return text
	}
	text = signTagPattern.ReplaceAllString(text, "")
	if strings.HasPrefix(text, SignPrefix) {
		return text
	}
	return SignPrefix + text
}

// MarkSigns applies MarkSign to every cue.
func MarkSigns(cues []Cue) []Cue {
	out := make([]Cue, len(cues))
	for i, c := range cues {
		c.Text = MarkSign(c.Text)
		out[i] = c
	}
	return out
}

// Tidy runs the whole pipeline over a raw track.
func Tidy(raw string) string {
	cues := Parse(raw)
	cues = RemoveBackgrounds(cues)
	cues = MergeAdjacent(cues)
	cues = MarkSigns(cues)
	return Serialize(cues)
}

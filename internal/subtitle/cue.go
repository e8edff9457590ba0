// Package subtitle cleans machine-extracted WebVTT tracks.
package subtitle

import (
	"strings"
)

const timingArrow = "-->"

// TimeRange is a cue timing line. Start and End keep their source form
// (HH:MM:SS.mmm) so comparisons are exact.
type TimeRange struct {
	Start    string
	End      string
	Settings string
}

func (r TimeRange) String() string {
	s := r.Start + " " + timingArrow + " " + r.End
	if r.Settings != "" {
		s += " " + r.Settings
	}
	return s
}

// Cue is one timed caption.
type Cue struct {
	Time TimeRange
	Text string
}

func parseTimeRange(line string) (TimeRange, bool) {
	left, right, ok := strings.Cut(line, timingArrow)
	if !ok {
		return TimeRange{}, false
	}
	start := strings.TrimSpace(left)
	fields := strings.Fields(right)
	if start == "" || len(fields) == 0 {
		return TimeRange{}, false
	}
	return TimeRange{
		Start:    start,
		End:      fields[0],
		Settings: strings.Join(fields[1:], " "),
	}, true
}

// Parse splits a raw track into cues. The first block is the file header
// and is discarded. Blocks without a timing line or without text are
// dropped.
func Parse(raw string) []Cue {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	blocks := splitBlocks(raw)
	if len(blocks) == 0 {
		return nil
	}

	cues := make([]Cue, 0, len(blocks)-1)
	for _, block := range blocks[1:] {
		cue, ok := parseBlock(block)
		if ok {
			cues = append(cues, cue)
		}
	}
	return cues
}

func splitBlocks(raw string) [][]string {
	var blocks [][]string
	var cur []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func parseBlock(lines []string) (Cue, bool) {
	for i, line := range lines {
		if !strings.Contains(line, timingArrow) {
			continue
		}
		tr, ok := parseTimeRange(line)
		if !ok {
			return Cue{}, false
		}
		text := strings.Join(lines[i+1:], "\n")
		if strings.TrimSpace(text) == "" {
			return Cue{}, false
		}
		return Cue{Time: tr, Text: text}, true
	}
	return Cue{}, false
}

// Serialize renders cues as a WebVTT document.
func Serialize(cues []Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		b.WriteString(c.Time.String())
		b.WriteByte('\n')
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

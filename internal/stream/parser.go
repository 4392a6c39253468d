package stream

import "strings"

// Markers configures the reasoning-delimited region of a model stream.
// The literals are configuration because providers disagree on them.
type Markers struct {
	Open  string
	Close string
}

// DefaultMarkers matches the common <think>...</think> convention.
func DefaultMarkers() Markers {
	return Markers{Open: "<think>", Close: "</think>"}
}

// Parser incrementally splits a chunk stream into visible text and a
// reasoning region. It is an explicit two-state machine (visible,
// reasoning) with a small pending buffer so a marker split across two
// chunks is still recognized.
//
// Parser is not safe for concurrent use; one Parser serves one stream.
type Parser struct {
	markers   Markers
	reasoning bool
	pending   string
	thought   strings.Builder
}

// NewParser creates a Parser for one stream.
func NewParser(markers Markers) *Parser {
	if markers.Open == "" || markers.Close == "" {
		markers = DefaultMarkers()
	}
	return &Parser{markers: markers}
}

// Feed consumes one chunk and returns the visible text it releases.
// Text that could be the start of a marker is withheld until the next
// chunk decides.
func (p *Parser) Feed(chunk string) string {
	data := p.pending + chunk
	p.pending = ""

	var visible strings.Builder
	for {
		if p.reasoning {
			if i := strings.Index(data, p.markers.Close); i >= 0 {
				p.thought.WriteString(data[:i])
				data = data[i+len(p.markers.Close):]
				p.reasoning = false
				continue
			}
			held := suffixOverlap(data, p.markers.Close)
			p.thought.WriteString(data[:len(data)-held])
			p.pending = data[len(data)-held:]
			return visible.String()
		}

		if i := strings.Index(data, p.markers.Open); i >= 0 {
			visible.WriteString(data[:i])
			data = data[i+len(p.markers.Open):]
			p.reasoning = true
			continue
		}
		held := suffixOverlap(data, p.markers.Open)
		visible.WriteString(data[:len(data)-held])
		p.pending = data[len(data)-held:]
		return visible.String()
	}
}

// Flush ends the stream and returns any withheld text. A partial open
// marker that never completed was ordinary text and is released; a
// partial close marker belongs to the unterminated reasoning region and
// stays hidden.
func (p *Parser) Flush() string {
	held := p.pending
	p.pending = ""
	if p.reasoning {
		p.thought.WriteString(held)
		return ""
	}
	return held
}

// Reasoning returns the stripped reasoning text accumulated so far.
func (p *Parser) Reasoning() string {
	return p.thought.String()
}

// suffixOverlap returns the length of the longest proper suffix of data
// that is a prefix of marker.
func suffixOverlap(data, marker string) int {
	max := len(marker) - 1
	if max > len(data) {
		max = len(data)
	}
	for k := max; k > 0; k-- {
		if strings.HasPrefix(marker, data[len(data)-k:]) {
			return k
		}
	}
	return 0
}

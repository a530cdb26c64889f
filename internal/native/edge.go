package native

import "strings"

// Edge is a set of window edges a resize follows.
type Edge int

const (
	EdgeTop Edge = 1 << iota
	EdgeBottom
	EdgeLeft
	EdgeRight
)

// EdgeDefault is the corner resized when no edge is given.
const EdgeDefault = EdgeBottom | EdgeRight

var edgeNames = []struct {
	edge Edge
	name string
}{
	{EdgeTop, "top"},
	{EdgeBottom, "bottom"},
	{EdgeLeft, "left"},
	{EdgeRight, "right"},
}

// ParseEdge reads names such as "left" or "top-right". Opposite edges
// cannot be combined.
func ParseEdge(s string) (Edge, bool) {
	var e Edge
	for part := range strings.SplitSeq(strings.ToLower(strings.TrimSpace(s)), "-") {
		found := false
		for _, n := range edgeNames {
			if n.name == part {
				e |= n.edge
				found = true
			}
		}
		if !found {
			return 0, false
		}
	}
	return e, e.Valid()
}

// Valid reports whether e names at least one edge and no opposite pair.
func (e Edge) Valid() bool {
	if e <= 0 || e > EdgeTop|EdgeBottom|EdgeLeft|EdgeRight {
		return false
	}
	return e&(EdgeTop|EdgeBottom) != EdgeTop|EdgeBottom &&
		e&(EdgeLeft|EdgeRight) != EdgeLeft|EdgeRight
}

func (e Edge) String() string {
	var parts []string
	for _, n := range edgeNames {
		if e&n.edge != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "-")
}

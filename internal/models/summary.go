package models

// UnassignedGroup is the group key used for snags without a room or trade label
const UnassignedGroup = "Unassigned"

// SeverityCounts tallies snags per severity. Unrated counts unanalyzed snags.
type SeverityCounts struct {
	Minor    int `json:"minor"`
	Moderate int `json:"moderate"`
	Major    int `json:"major"`
	Unrated  int `json:"unrated"`
	Total    int `json:"total"`
}

func (c *SeverityCounts) add(sev Severity) {
	c.Total++
	switch sev {
	case SeverityMinor:
		c.Minor++
	case SeverityModerate:
		c.Moderate++
	case SeverityMajor:
		c.Major++
	default:
		c.Unrated++
	}
}

// Group is an ordered bucket of snags sharing a room or trade label
type Group struct {
	Key    string         `json:"key"`
	Counts SeverityCounts `json:"counts"`
	Snags  []Snag         `json:"-"`
}

// Summary holds every value derived from a report's snag set
type Summary struct {
	Counts  SeverityCounts `json:"severityCounts"`
	ByRoom  []Group        `json:"byRoom"`
	ByTrade []Group        `json:"byTrade"`
}

// Summarize derives severity counts and room/trade groupings in a single pass.
// Snags must already be in display order; groups appear in first-insertion
// order of their keys.
func Summarize(snags []Snag) Summary {
	var s Summary
	rooms := newGrouper()
	trades := newGrouper()
	for _, snag := range snags {
		s.Counts.add(snag.Severity)
		rooms.add(groupKey(snag.Room), snag)
		trades.add(groupKey(snag.SuggestedTrade), snag)
	}
	s.ByRoom = rooms.groups
	s.ByTrade = trades.groups
	return s
}

// CountSeverities is Summarize restricted to the counts
func CountSeverities(snags []Snag) SeverityCounts {
	var c SeverityCounts
	for _, snag := range snags {
		c.add(snag.Severity)
	}
	return c
}

type grouper struct {
	index  map[string]int
	groups []Group
}

func newGrouper() *grouper {
	return &grouper{index: make(map[string]int)}
}

func (g *grouper) add(key string, snag Snag) {
	i, ok := g.index[key]
	if !ok {
		i = len(g.groups)
		g.index[key] = i
		g.groups = append(g.groups, Group{Key: key})
	}
	g.groups[i].Snags = append(g.groups[i].Snags, snag)
	g.groups[i].Counts.add(snag.Severity)
}

func groupKey(label string) string {
	if label == "" {
		return UnassignedGroup
	}
	return label
}

package datasource

import (
	"slices"
	"sort"
	"time"
)

// Universe is the membership of one index.
type Universe struct {
	ID       string
	provider string
	current  []string
	changes  []Change
}

// Constituents returns the nicknames of the index members as of date.
// Membership is the most recent constituent list regardless of date; the
// change history is loaded and exposed through Changes but not replayed.
func (u *Universe) Constituents(date time.Time) []string {
	out := make([]string, len(u.current))
	for i, s := range u.current {
		out[i] = u.provider + ":" + s
	}
	return out
}

// Changes returns the membership history, oldest first.
func (u *Universe) Changes() []Change { return slices.Clone(u.changes) }

func sortChanges(c []Change) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Date.Before(c[j].Date) })
}

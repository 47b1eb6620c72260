package datasource

import (
	"time"

	"simtrader/internal/domain"
)

// Provider builds the requests for one upstream source. Loaders are cheap
// descriptions; nothing is fetched until Load runs them.
type Provider interface {
	// Name is the nickname prefix selecting this provider, e.g. "fmp".
	Name() string
	// Bars describes the full adjusted daily history of symbol.
	Bars(symbol string) Loader[[]domain.Bar]
	// Meta describes the descriptive record of symbol.
	Meta(symbol string) Loader[domain.Meta]
}

// Change is one historical index membership change.
type Change struct {
	Date    time.Time `json:"date"`
	Added   string    `json:"added,omitempty"`
	Removed string    `json:"removed,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// UniverseProvider is implemented by providers that know index membership.
type UniverseProvider interface {
	// Constituents describes the current members of index, as provider
	// symbols.
	Constituents(index string) Loader[[]string]
	// Changes describes the membership history of index.
	Changes(index string) Loader[[]Change]
}

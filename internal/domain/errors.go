package domain

import "errors"

// Error taxonomy. Wrap these with fmt.Errorf("...: %w", ...) and test with
// errors.Is.
var (
	// ErrDataUnavailable is a soft failure: a provider could not supply
	// usable data. Callers may fall back to another provider.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrDataIntegrity is fatal: loaded data contradicts itself, such as a
	// splice without an overlap date or an OHLC ordering violation.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrConfiguration is fatal: invalid parameters, unknown providers or
	// universes, or an allocation to an asset without data.
	ErrConfiguration = errors.New("configuration error")
)

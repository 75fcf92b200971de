package models

// Listing is the result of a masked read. Degraded is set when the
// underlying fetch failed and Items is empty because of it rather than
// because there is nothing to show.
type Listing[T any] struct {
	Items    []T  `json:"items"`
	Degraded bool `json:"degraded,omitempty"`
}

// Ok wraps a successful read.
func Ok[T any](items []T) Listing[T] {
	if items == nil {
		items = []T{}
	}
	return Listing[T]{Items: items}
}

// Failed is an empty listing that records the fetch failure.
func Failed[T any]() Listing[T] {
	return Listing[T]{Items: []T{}, Degraded: true}
}

// Package karma credits reputation points to the two parties of a completed
// exchange.
package karma

// Points is the fixed reward table.
type Points struct {
	Owner   int
	Offeror int
}

// DefaultPoints is used when no reward table is configured.
var DefaultPoints = Points{Owner: 10, Offeror: 5}

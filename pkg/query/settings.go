package query

// RequestSettings are the per-request flags that influence processing
// without being part of the query itself.
type RequestSettings struct {
	// Turbo skips consistency enforcement for cheaper, possibly stale
	// results.
	Turbo bool

	// Consistent forces reads through the write path's node.
	Consistent bool

	Debug bool
}

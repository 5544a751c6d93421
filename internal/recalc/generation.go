package recalc

// Generation tracks which response of an asynchronous edge is current. It is
// not safe for concurrent use and is meant to be touched under the engine lock.
type Generation struct {
	current uint64
	pending bool
}

// Next supersedes every earlier token.
func (g *Generation) Next() uint64 {
	g.current++
	return g.current
}

// Current reports whether tok is the most recent token.
func (g *Generation) Current(tok uint64) bool {
	return tok == g.current
}

// Pending reports whether an Acquire has not been released yet.
func (g *Generation) Pending() bool {
	return g.pending
}

// Acquire implements single-in-flight requests. When nothing is pending it
// returns a token and issue=true. Otherwise the pending request is marked
// stale and issue=false; the caller must not start a second request.
func (g *Generation) Acquire() (tok uint64, issue bool) {
	g.current++
	if g.pending {
		return 0, false
	}
	g.pending = true
	return g.current, true
}

// Release ends the pending request started with tok and reports whether its
// response is still fresh. A stale response must be discarded and the request
// restarted; any number of supersessions collapse into that one restart.
func (g *Generation) Release(tok uint64) (fresh bool) {
	g.pending = false
	return tok == g.current
}

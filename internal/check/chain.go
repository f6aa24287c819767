package check

import "FlowSieve/internal/model"

// Chain is the ordered list of checkers for one run. Registration order is
// fixed at start-up: built-ins first, then the tuple matcher, then external
// filters. The chain itself holds no other state and is safe for concurrent
// Run calls as long as its checkers are.
type Chain struct {
	checkers []model.Checker
}

// Append registers a checker at the end of the chain.
func (c *Chain) Append(ck model.Checker) {
	c.checkers = append(c.checkers, ck)
}

// Len returns the number of registered checkers.
func (c *Chain) Len() int {
	return len(c.checkers)
}

// threadSafety is implemented by checkers that may forbid concurrent use,
// such as external filters with mutable per-record state.
type threadSafety interface {
	ThreadSafe() bool
}

// ThreadSafe reports whether every checker tolerates concurrent Check
// calls. Checkers that do not declare themselves are assumed safe; the
// built-ins and the tuple matcher are read-only after construction.
func (c *Chain) ThreadSafe() bool {
	for _, ck := range c.checkers {
		if ts, ok := ck.(threadSafety); ok && !ts.ThreadSafe() {
			return false
		}
	}
	return true
}

// Run evaluates the record against each checker in registration order. The
// first Fail decides the record; PassNow and Ignore stop the chain early
// and count as a pass. A record surviving every checker passes.
func (c *Chain) Run(r *model.FlowRec) model.Verdict {
	for _, ck := range c.checkers {
		switch v := ck.Check(r); v {
		case model.Fail:
			return model.Fail
		case model.PassNow, model.Ignore:
			return v
		}
	}
	return model.Pass
}

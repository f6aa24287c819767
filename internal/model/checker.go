package model

// Verdict is the outcome of running one checker against a record.
type Verdict int

const (
	// Fail rejects the record; no further checkers run.
	Fail Verdict = iota
	// Pass accepts the record for this checker; later checkers still run.
	Pass
	// PassNow accepts the record and stops the chain.
	PassNow
	// Ignore stops the chain without an explicit accept or reject. The
	// dispatcher treats it like a pass. Built-in checkers never return it;
	// it exists for external filters.
	Ignore
)

// String returns the verdict name for diagnostics.
func (v Verdict) String() string {
	switch v {
	case Fail:
		return "fail"
	case Pass:
		return "pass"
	case PassNow:
		return "pass-now"
	case Ignore:
		return "ignore"
	}
	return "unknown"
}

// Checker tests a single record. Built-in field tests, the tuple matcher,
// and external filters all implement this; the chain runs them in
// registration order.
type Checker interface {
	Check(r *FlowRec) Verdict
}

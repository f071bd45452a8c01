package querycache

// ViewState is the lifecycle of a derived view built from several
// independently cached queries. Views are long-lived: an explicit refetch
// sends a ready view back to pending.
type ViewState int

const (
	// ViewPending: inputs are still loading and nothing usable resolved yet.
	ViewPending ViewState = iota
	// ViewPartial: some inputs resolved but at least one is pending or errored.
	ViewPartial
	// ViewReady: every input resolved without error.
	ViewReady
)

func (s ViewState) String() string {
	switch s {
	case ViewPending:
		return "pending"
	case ViewPartial:
		return "partial"
	case ViewReady:
		return "ready"
	}
	return "unknown"
}

// InputState is the reduced state of one constituent query, as consumed by
// CombineStates. Result[T] produces it via Input().
type InputState struct {
	Resolved bool
	Pending  bool
	Errored  bool
}

// Input reduces a result to its derived-view input state.
func (r Result[T]) Input() InputState {
	return InputState{
		Resolved: r.HasData(),
		Pending:  r.IsLoading || r.Stale,
		Errored:  r.IsError,
	}
}

// CombineStates merges constituent input states into one view state.
// All resolved and clean is ready; anything resolved alongside a pending or
// errored input is partial; otherwise the view is still pending.
func CombineStates(inputs ...InputState) ViewState {
	if len(inputs) == 0 {
		return ViewPending
	}

	resolved, pending, errored := 0, 0, 0
	for _, in := range inputs {
		if in.Resolved {
			resolved++
		}
		if in.Pending {
			pending++
		}
		if in.Errored {
			errored++
		}
	}

	if resolved == len(inputs) && errored == 0 && pending == 0 {
		return ViewReady
	}
	if resolved > 0 {
		return ViewPartial
	}
	return ViewPending
}

package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func resolved() InputState { return InputState{Resolved: true} }
func loading() InputState  { return InputState{Pending: true} }

func TestCombineStatesAllResolved(t *testing.T) {
	assert.Equal(t, ViewReady, CombineStates(resolved(), resolved(), resolved()))
}

func TestCombineStatesAllPending(t *testing.T) {
	assert.Equal(t, ViewPending, CombineStates(loading(), loading()))
}

func TestCombineStatesMixed(t *testing.T) {
	assert.Equal(t, ViewPartial, CombineStates(resolved(), loading()))
	assert.Equal(t, ViewPartial, CombineStates(resolved(), InputState{Resolved: true, Errored: true}))
	assert.Equal(t, ViewPartial, CombineStates(resolved(), resolved(), InputState{Errored: true, Resolved: true}))
}

func TestCombineStatesErroredWithoutData(t *testing.T) {
	// Nothing resolved yet, so even with errors the view has nothing to show.
	assert.Equal(t, ViewPending, CombineStates(InputState{Errored: true}, loading()))
}

func TestCombineStatesStaleInputKeepsViewPartial(t *testing.T) {
	// A stale input counts as pending: its refetch is still in flight.
	r := Result[int]{Data: 5, UpdatedAt: time.Now(), Stale: true}
	assert.Equal(t, ViewPartial, CombineStates(r.Input(), resolved()))
}

func TestCombineStatesEmpty(t *testing.T) {
	assert.Equal(t, ViewPending, CombineStates())
}

func TestViewStateString(t *testing.T) {
	assert.Equal(t, "pending", ViewPending.String())
	assert.Equal(t, "partial", ViewPartial.String())
	assert.Equal(t, "ready", ViewReady.String())
}

func TestResultInput(t *testing.T) {
	var empty Result[string]
	assert.Equal(t, InputState{}, empty.Input())

	withData := Result[string]{Data: "x", UpdatedAt: time.Now()}
	assert.Equal(t, InputState{Resolved: true}, withData.Input())

	loading := Result[string]{IsLoading: true}
	assert.Equal(t, InputState{Pending: true}, loading.Input())
}

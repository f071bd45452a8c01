package stream

import (
	"encoding/json"
	"testing"
	"time"

	"emberscan/internal/models"
	"emberscan/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStream() *Stream {
	return NewStream(8, logger.New(logger.Options{Level: "error"}))
}

func TestPublishReachesSubscriber(t *testing.T) {
	s := testStream()

	ch, cleanup := s.Subscribe()
	defer cleanup()

	s.Publish(&models.HeadEvent{Height: 42, Hash: "0xhead"})

	select {
	case data := <-ch:
		var ev models.HeadEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, uint64(42), ev.Height)
		assert.Equal(t, "0xhead", ev.Hash)
	case <-time.After(time.Second):
		t.Fatal("expected a published event")
	}
}

func TestBufferedEventsReplayToLateSubscriber(t *testing.T) {
	s := testStream()

	// No subscribers yet, events go into the buffer.
	s.Publish(&models.HeadEvent{Height: 1})
	s.Publish(&models.HeadEvent{Height: 2})

	ch, cleanup := s.Subscribe()
	defer cleanup()

	var heights []uint64
	deadline := time.After(time.Second)
	for len(heights) < 2 {
		select {
		case data := <-ch:
			var ev models.HeadEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			heights = append(heights, ev.Height)
		case <-deadline:
			t.Fatalf("expected 2 replayed events, got %d", len(heights))
		}
	}
	assert.Equal(t, []uint64{1, 2}, heights)
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	s := NewStream(2, logger.New(logger.Options{Level: "error"}))

	s.Publish(&models.HeadEvent{Height: 1})
	s.Publish(&models.HeadEvent{Height: 2})
	s.Publish(&models.HeadEvent{Height: 3})

	ch, cleanup := s.Subscribe()
	defer cleanup()

	var heights []uint64
	deadline := time.After(time.Second)
	for len(heights) < 2 {
		select {
		case data := <-ch:
			var ev models.HeadEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			heights = append(heights, ev.Height)
		case <-deadline:
			t.Fatalf("expected 2 replayed events, got %d", len(heights))
		}
	}
	assert.Equal(t, []uint64{2, 3}, heights)
}

func TestClientCount(t *testing.T) {
	s := testStream()
	assert.Equal(t, 0, s.ClientCount())

	_, cleanup1 := s.Subscribe()
	_, cleanup2 := s.Subscribe()
	assert.Equal(t, 2, s.ClientCount())

	cleanup1()
	assert.Equal(t, 1, s.ClientCount())
	cleanup2()
	assert.Equal(t, 0, s.ClientCount())
}

func TestPublishNilIsNoop(t *testing.T) {
	s := testStream()
	s.Publish(nil)
	assert.Equal(t, 0, s.ClientCount())
}

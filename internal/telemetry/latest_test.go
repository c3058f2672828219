package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestLoad(t *testing.T) {
	l := NewLatest[int]()

	_, ok := l.Load()
	assert.False(t, ok, "nothing published yet")

	l.Publish(1)
	l.Publish(2)

	v, ok := l.Load()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLatestSubscriptionOverwrites(t *testing.T) {
	l := NewLatest[int]()
	sub := l.Subscribe()
	defer sub.Unsubscribe()

	for i := 1; i <= 5; i++ {
		l.Publish(i)
	}

	// only the newest unread value is held
	assert.Equal(t, 5, <-sub.C())

	select {
	case v := <-sub.C():
		t.Fatalf("expected no backlog, got %d", v)
	default:
	}
}

func TestLatestSubscribePrimed(t *testing.T) {
	l := NewLatest[string]()
	l.Publish("wet")

	sub := l.Subscribe()
	defer sub.Unsubscribe()

	assert.Equal(t, "wet", <-sub.C())
}

func TestLatestUnsubscribe(t *testing.T) {
	l := NewLatest[int]()
	sub := l.Subscribe()
	sub.Unsubscribe()

	l.Publish(7)

	select {
	case v := <-sub.C():
		t.Fatalf("unsubscribed subscription received %d", v)
	default:
	}
}

func TestLatestConcurrentPublishers(t *testing.T) {
	l := NewLatest[int]()
	sub := l.Subscribe()
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Publish(w*1000 + i)
			}
		}(w)
	}
	wg.Wait()

	last, ok := l.Load()
	require.True(t, ok)

	// the subscriber sees exactly the value the cell holds
	assert.Equal(t, last, <-sub.C())
}

package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFeedPublishDeliversToSubscriber(t *testing.T) {
	feed := NewFeed[int](4)
	sub := feed.Subscribe()
	defer sub.Close()

	feed.Publish(42)

	select {
	case v := <-sub.C():
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published value")
	}
}

func TestFeedSkipsFullSubscriberAndMarksLagged(t *testing.T) {
	feed := NewFeed[int](1)
	sub := feed.Subscribe()
	defer sub.Close()

	feed.Publish(1)
	feed.Publish(2) // buffer full, dropped

	require.True(t, sub.Lagged())
	require.False(t, sub.Lagged(), "Lagged should clear itself after reading")

	v := <-sub.C()
	require.Equal(t, 1, v)
}

func TestFeedCloseRemovesSubscriber(t *testing.T) {
	feed := NewFeed[int](1)
	sub := feed.Subscribe()
	require.Equal(t, 1, feed.Subscribers())
	sub.Close()
	require.Equal(t, 0, feed.Subscribers())

	_, ok := <-sub.C()
	require.False(t, ok)
}

func TestFeedMultipleSubscribers(t *testing.T) {
	feed := NewFeed[string](2)
	a := feed.Subscribe()
	b := feed.Subscribe()
	defer a.Close()
	defer b.Close()

	feed.Publish("hello")

	require.Equal(t, "hello", <-a.C())
	require.Equal(t, "hello", <-b.C())
}

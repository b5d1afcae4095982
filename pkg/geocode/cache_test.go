package geocode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_HitAvoidsUpstream(t *testing.T) {
	fake := &fakeGeocoder{results: map[string]*Match{"Boulder, CO": {Latitude: 40.015, Longitude: -105.2705}}}
	c := NewCache(fake, time.Hour)

	for i := 0; i < 3; i++ {
		m, err := c.Lookup(context.Background(), "Boulder, CO")
		require.NoError(t, err)
		require.NotNil(t, m)
	}
	assert.Len(t, fake.Calls(), 1)
	assert.Equal(t, 1, c.Len())
}

func TestCache_CachesMisses(t *testing.T) {
	fake := &fakeGeocoder{}
	c := NewCache(fake, time.Hour)

	m, err := c.Lookup(context.Background(), "Atlantis, CO")
	require.NoError(t, err)
	assert.Nil(t, m)
	_, _ = c.Lookup(context.Background(), "Atlantis, CO")
	assert.Len(t, fake.Calls(), 1)
}

func TestCache_DoesNotCacheErrors(t *testing.T) {
	fake := &fakeGeocoder{errs: map[string]error{"Boulder, CO": errors.New("timeout")}}
	c := NewCache(fake, time.Hour)

	_, err := c.Lookup(context.Background(), "Boulder, CO")
	require.Error(t, err)
	_, err = c.Lookup(context.Background(), "Boulder, CO")
	require.Error(t, err)
	assert.Len(t, fake.Calls(), 2)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	fake := &fakeGeocoder{results: map[string]*Match{"Lyons, CO": {Latitude: 40.22}}}
	c := NewCache(fake, time.Minute)
	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	_, _ = c.Lookup(context.Background(), "Lyons, CO")
	c.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	_, _ = c.Lookup(context.Background(), "Lyons, CO")

	assert.Len(t, fake.Calls(), 2)
}

type slowGeocoder struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (s *slowGeocoder) Lookup(_ context.Context, _ string) (*Match, error) {
	s.calls.Add(1)
	<-s.gate
	return &Match{Latitude: 1, Longitude: 2}, nil
}

func TestCache_CoalescesConcurrentLookups(t *testing.T) {
	slow := &slowGeocoder{gate: make(chan struct{})}
	c := NewCache(slow, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.Lookup(context.Background(), "Golden, CO")
			assert.NoError(t, err)
			assert.NotNil(t, m)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(slow.gate)
	wg.Wait()

	assert.LessOrEqual(t, slow.calls.Load(), int32(2))
}

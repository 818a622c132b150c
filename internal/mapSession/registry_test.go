package mapSession

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japersik/weather-map/internal/mapDataClient"
)

func TestRegistry(t *testing.T) {
	created := 0
	r := NewRegistry(func(key string) *Session {
		created++
		return New(key, mapDataClient.Client{WeatherInfoSource: weatherFunc(clearSky)}, Options{})
	})
	defer r.Close()

	a, isNew := r.GetOrCreate("web:a")
	assert.True(t, isNew)
	again, isNew := r.GetOrCreate("web:a")
	assert.False(t, isNew)
	assert.Same(t, a, again)
	_, _ = r.GetOrCreate("tg:1")
	assert.Equal(t, 2, created)
	assert.Equal(t, []string{"tg:1", "web:a"}, r.Keys())

	got, err := r.Get("web:a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, r.Remove("web:a"))
	_, err = r.Get("web:a")
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.ErrorIs(t, r.Remove("web:a"), ErrUnknownSession)
	assert.ErrorIs(t, a.SurfaceReady(), ErrSessionClosed)

	r.Close()
	assert.Empty(t, r.Keys())
}

func TestRegistrySetupRunsBeforeSessionIsShared(t *testing.T) {
	r := NewRegistry(func(key string) *Session {
		return New(key, mapDataClient.Client{WeatherInfoSource: weatherFunc(clearSky)}, Options{})
	})
	defer r.Close()

	var setups atomic.Int32
	setup := func(s *Session) {
		setups.Add(1)
		time.Sleep(5 * time.Millisecond)
		assert.NoError(t, s.SurfaceReady())
	}

	var wg sync.WaitGroup
	surfaces := make([]SurfaceStatus, 8)
	for i := range surfaces {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _ := r.GetOrCreate("tg:42", setup)
			surfaces[i] = s.State().Surface
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), setups.Load())
	for _, surface := range surfaces {
		assert.Equal(t, SurfaceReady, surface)
	}
}

func TestRegistryRemoveIdle(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	var clock atomic.Pointer[time.Time]
	clock.Store(&now)
	r := NewRegistry(func(key string) *Session {
		return New(key, mapDataClient.Client{WeatherInfoSource: weatherFunc(clearSky)}, Options{
			Now: func() time.Time { return *clock.Load() },
		})
	})
	defer r.Close()

	stale, _ := r.GetOrCreate("web:stale")
	_, _ = r.GetOrCreate("web:busy")

	later := now.Add(time.Hour)
	clock.Store(&later)
	busy, _ := r.GetOrCreate("web:busy")
	require.NoError(t, busy.SurfaceReady())

	removed := r.RemoveIdle(now.Add(30 * time.Minute))
	assert.Equal(t, []string{"web:stale"}, removed)
	assert.Equal(t, []string{"web:busy"}, r.Keys())
	assert.ErrorIs(t, stale.SurfaceReady(), ErrSessionClosed)
}

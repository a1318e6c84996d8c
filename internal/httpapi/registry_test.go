package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/jmylchreest/smartcut/internal/job"
)

func TestRegistrySubmitAssignsUniqueIDs(t *testing.T) {
	registry := NewRegistry(nil, nil)

	req := job.Request{
		VideoPath:  "testdata/does-not-exist.h264",
		OutputPath: "testdata/out.mkv",
		KeepList:   cutplan.KeepList{{Start: 0, End: 10}},
		Config:     config.SessionConfig{FrameRate: 25},
	}

	first := registry.Submit(context.Background(), req)
	second := registry.Submit(context.Background(), req)

	assert.NotEqual(t, first.id, second.id)

	_, ok := registry.Get(first.id.String())
	assert.True(t, ok)
	_, ok = registry.Get(second.id.String())
	assert.True(t, ok)
}

func TestRegistryGetUnknownIDReturnsFalse(t *testing.T) {
	registry := NewRegistry(nil, nil)
	_, ok := registry.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistryProgressSubscriberReceivesEvents(t *testing.T) {
	registry := NewRegistry(nil, nil)

	req := job.Request{
		VideoPath:  "testdata/does-not-exist.h264",
		OutputPath: "testdata/out.mkv",
		KeepList:   cutplan.KeepList{{Start: 0, End: 10}},
		Config:     config.SessionConfig{FrameRate: 25},
	}
	tj := registry.Submit(context.Background(), req)

	_, events := tj.subscribe()

	require.Eventually(t, func() bool {
		snap := tj.snapshot()
		return snap.state == JobStateFailed || snap.state == JobStateCanceled
	}, 2*time.Second, 10*time.Millisecond)

	// The channel is closed once the job settles, regardless of whether
	// any progress events were ever published on it.
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel was never closed")
	}
}

package app

import (
	"sync"
	"testing"
	"time"

	"imvqa/domain/core"
	"imvqa/domain/plate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionData(t *testing.T) (plate.Layout, *plate.QADataset) {
	t.Helper()
	layout := plate.NewLayout(
		plate.LayoutEntry{Well: plate.NewWell(1, 1), Compound: "DMSO"},
		plate.LayoutEntry{Well: plate.NewWell(1, 2), Compound: "Cmpd-A"},
	)
	ds, err := plate.NewQADataset([]string{"Intensity"}, []plate.FieldRecord{
		{Row: 1, Column: 1, Field: 1, Values: []float64{10}},
		{Row: 1, Column: 2, Field: 1, Values: []float64{20}},
	})
	require.NoError(t, err)
	return layout, ds
}

func TestSessionManager_CreateGetDelete(t *testing.T) {
	sm := NewSessionManager(0)
	layout, ds := testSessionData(t)

	s := sm.Create("layout.xlsx", "qa.csv", layout, ds)
	assert.False(t, core.ID(s.ID).IsEmpty())
	assert.Equal(t, 1, sm.Len())

	got, err := sm.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	info := got.Info()
	assert.Equal(t, "layout.xlsx", info.LayoutName)
	assert.Equal(t, 2, info.Wells)
	assert.Equal(t, 2, info.Records)
	assert.Equal(t, []string{"Intensity"}, info.Features)

	require.NoError(t, sm.Delete(s.ID))
	_, err = sm.Get(s.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.ErrorIs(t, sm.Delete(s.ID), core.ErrSessionNotFound)
}

func TestSessionManager_ListOldestFirst(t *testing.T) {
	sm := NewSessionManager(0)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return clock }
	layout, ds := testSessionData(t)

	first := sm.Create("a", "a", layout, ds)
	clock = clock.Add(time.Minute)
	second := sm.Create("b", "b", layout, ds)

	list := sm.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestSessionManager_Prune(t *testing.T) {
	sm := NewSessionManager(time.Hour)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return clock }
	layout, ds := testSessionData(t)

	idle := sm.Create("idle", "idle", layout, ds)
	active := sm.Create("active", "active", layout, ds)

	clock = clock.Add(45 * time.Minute)
	_, err := sm.Get(active.ID)
	require.NoError(t, err)

	clock = clock.Add(30 * time.Minute)
	assert.Equal(t, 1, sm.Prune())

	_, err = sm.Get(idle.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = sm.Get(active.ID)
	assert.NoError(t, err)
}

func TestSessionManager_PruneDisabled(t *testing.T) {
	sm := NewSessionManager(0)
	layout, ds := testSessionData(t)
	sm.Create("a", "a", layout, ds)

	sm.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Equal(t, 0, sm.Prune())
	assert.Equal(t, 1, sm.Len())
}

func TestSessionManager_Concurrent(t *testing.T) {
	sm := NewSessionManager(time.Hour)
	layout, ds := testSessionData(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := sm.Create("l", "q", layout, ds)
			_, _ = sm.Get(s.ID)
			_ = sm.List()
			sm.Prune()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, sm.Len())
}

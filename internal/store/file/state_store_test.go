package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

func TestLoadMissingFileIsFlat(t *testing.T) {
	s := NewStateStore(filepath.Join(t.TempDir(), "state.json"))

	pos, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, pos.Active)
	assert.Equal(t, domain.PositionFlat, pos.State())
}

func TestLoadEmptyFileIsFlat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	pos, err := NewStateStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, pos.Active)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewStateStore(path)

	peak := 66100.0
	want := domain.Position{
		Active:          true,
		Side:            domain.SideLong,
		EntryPrice:      65000,
		QtyTotal:        0.02,
		QtyRemaining:    0.01,
		StopLoss:        65000,
		TakeProfit1:     65800,
		TakeProfit2:     66200,
		TP1Hit:          true,
		BreakevenActive: true,
		TrailingActive:  true,
		TrailingPeak:    &peak,
		OrderID:         "order-7",
	}
	require.NoError(t, s.Save(context.Background(), want))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NotNil(t, got.TrailingPeak)
	assert.Equal(t, peak, *got.TrailingPeak)
}

func TestSaveOverwritesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStateStore(path)

	require.NoError(t, s.Save(context.Background(), domain.Position{
		Active: true, Side: domain.SideShort, EntryPrice: 66850,
	}))
	require.NoError(t, s.Save(context.Background(), domain.Position{}))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger after a save")
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStateStore(path).Load(context.Background())
	assert.Error(t, err)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/indices"
	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/pif"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

var stamp = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func sampleParams(band scene.BandName, slope float64) *normalize.Params {
	var z pif.ZoneCounts
	for i := range z {
		z[i] = 10 + i
	}
	return &normalize.Params{
		Band: band, Slope: slope, Intercept: 0.01, StdThreshold: 0.003,
		R: 0.97, N: 1200, Iteration: 2, Mask: normalize.Unbalanced, Coef: 2, ZoneCounts: z,
	}
}

func TestFromParams(t *testing.T) {
	r := FromParams("run-1", "20230115l8oli202_34", sampleParams(scene.NIR, 0.9), stamp)
	assert.Equal(t, "nir", r.Band)
	assert.Equal(t, "unbalanced", r.Mask)
	assert.Equal(t, 10, r.Sea)
	assert.Equal(t, 18, r.Mining)
	assert.Equal(t, sampleParams(scene.NIR, 0.9).ZoneCounts, r.ZoneCounts())
}

func TestSQLite_RoundTripAndReplace(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "marisma.db"))
	require.NoError(t, err)
	defer db.Close()

	id := "20230115l8oli202_34"
	recs := []Record{
		FromParams("run-1", id, sampleParams(scene.Red, 0.9), stamp),
		FromParams("run-1", id, sampleParams(scene.NIR, 1.1), stamp),
	}
	require.NoError(t, db.SaveParams(ctx, recs))

	got, err := db.Params(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "nir", got[0].Band, "ordered by band")
	assert.InDelta(t, 1.1, got[0].Slope, 1e-12)
	assert.True(t, stamp.Equal(got[0].ProcessedAt))

	// Reprocessing replaces the row for the same (scene, band).
	require.NoError(t, db.SaveParams(ctx, []Record{FromParams("run-2", id, sampleParams(scene.NIR, 1.2), stamp)}))
	got, err = db.Params(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.InDelta(t, 1.2, got[0].Slope, 1e-12)
}

func TestSQLite_Area(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "marisma.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Area(ctx, "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	rec := AreaRecord{RunID: "run-1", Scene: "s", Area: indices.Area{FloodedPixels: 5, FloodedHa: 0.45}, ProcessedAt: stamp}
	require.NoError(t, db.SaveArea(ctx, rec))
	got, err := db.Area(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 5, got.FloodedPixels)
	assert.InDelta(t, 0.45, got.FloodedHa, 1e-12)
}

func TestCSVLog_AppendsWithSingleHeader(t *testing.T) {
	ctx := context.Background()
	l, err := NewCSVLog(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, l.SaveParams(ctx, []Record{FromParams("run-1", "a", sampleParams(scene.Red, 0.9), stamp)}))
	require.NoError(t, l.SaveParams(ctx, []Record{
		FromParams("run-1", "b", sampleParams(scene.Red, 0.8), stamp),
		FromParams("run-1", "b", sampleParams(scene.Green, 0.7), stamp),
	}))
	require.NoError(t, l.SaveParams(ctx, nil))

	rows, err := l.ReadParams()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].Scene)
	assert.Equal(t, "green", rows[2].Band)
	assert.Equal(t, 2, rows[2].Iteration)
	assert.True(t, stamp.Equal(rows[1].ProcessedAt))

	require.NoError(t, l.SaveArea(ctx, AreaRecord{Scene: "a", Area: indices.Area{DryPixels: 3}}))
	assert.FileExists(t, l.AreaPath)
}

type failing struct{ closed bool }

func (f *failing) SaveParams(context.Context, []Record) error { return errors.New("params down") }
func (f *failing) SaveArea(context.Context, AreaRecord) error { return errors.New("area down") }
func (f *failing) Close() error                               { f.closed = true; return nil }

func TestMulti_AttemptsEverySink(t *testing.T) {
	ctx := context.Background()
	l, err := NewCSVLog(t.TempDir())
	require.NoError(t, err)
	f := &failing{}
	m := Multi{f, l}

	err = m.SaveParams(ctx, []Record{FromParams("run", "a", sampleParams(scene.Red, 1), stamp)})
	assert.ErrorContains(t, err, "params down")
	rows, err := l.ReadParams()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "csv still written after the first sink failed")

	assert.NoError(t, m.Close())
	assert.True(t, f.closed)
}

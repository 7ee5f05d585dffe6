package batch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/config"
	"github.com/MeKo-Tech/marisma/internal/store"
	"github.com/MeKo-Tech/marisma/internal/testutil"
)

func studyAppConfig(s *testutil.Study) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Reference.Dir = s.ReferenceDir
	cfg.Masks.Unbalanced = s.MaskPaths["unbalanced"]
	cfg.Masks.Balanced = s.MaskPaths["balanced"]
	cfg.Ancillary.Dir = s.AncillaryDir
	cfg.Output.Dir = filepath.Join(s.Root, "out")
	cfg.Output.Quicklooks = false
	return &cfg
}

func TestBuildPipeline_PersistsToConfiguredSinks(t *testing.T) {
	s := testutil.NewStudy(t)
	dir := s.AddScene(t, testutil.OLIProduct, testutil.SceneOptions{})
	cfg := studyAppConfig(s)
	cfg.Store.SQLitePath = filepath.Join(s.Root, "db", "marisma.db")
	cfg.Store.CSVDir = filepath.Join(s.Root, "logs")

	pl, err := BuildPipeline(cfg, Deps{
		Reader: s.Store, Writer: s.Store, Ancillary: true,
		RunID: "run-42", Clock: clockwork.NewFakeClock(),
	})
	require.NoError(t, err)
	assert.Equal(t, "run-42", pl.RunID())

	res, err := pl.ProcessScene(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, pl.Close())

	db, err := store.NewSQLite(cfg.Store.SQLitePath)
	require.NoError(t, err)
	defer db.Close()
	recs, err := db.Params(context.Background(), res.Scene)
	require.NoError(t, err)
	assert.Len(t, recs, len(res.Normalized))
	area, err := db.Area(context.Background(), res.Scene)
	require.NoError(t, err)
	assert.Equal(t, res.Area.FloodedPixels, area.FloodedPixels)

	log, err := store.NewCSVLog(cfg.Store.CSVDir)
	require.NoError(t, err)
	logged, err := log.ReadParams()
	require.NoError(t, err)
	assert.Len(t, logged, len(res.Normalized))
}

func TestBuildPipeline_NormalizeOnlySkipsAncillary(t *testing.T) {
	s := testutil.NewStudy(t)
	cfg := studyAppConfig(s)
	cfg.Ancillary.Dir = ""

	_, err := BuildPipeline(cfg, Deps{Reader: s.Store, Writer: s.Store})
	require.NoError(t, err)
	assert.Zero(t, s.Store.Reads(s.AncillaryPath("dtm")))

	_, err = BuildPipeline(cfg, Deps{Reader: s.Store, Writer: s.Store, Ancillary: true})
	assert.Error(t, err)
}

func TestBuildPipeline_InvalidConfig(t *testing.T) {
	s := testutil.NewStudy(t)
	cfg := studyAppConfig(s)
	cfg.Reference.Dir = ""
	_, err := BuildPipeline(cfg, Deps{Reader: s.Store, Writer: s.Store})
	assert.ErrorContains(t, err, "reference directory")
}

func TestOpenSink(t *testing.T) {
	sink, err := OpenSink(config.StoreConfig{})
	require.NoError(t, err)
	assert.Nil(t, sink)

	dir := t.TempDir()
	sink, err = OpenSink(config.StoreConfig{CSVDir: dir})
	require.NoError(t, err)
	assert.IsType(t, &store.CSVLog{}, sink)

	sink, err = OpenSink(config.StoreConfig{CSVDir: dir, SQLitePath: filepath.Join(dir, "p.db")})
	require.NoError(t, err)
	assert.IsType(t, store.Multi{}, sink)
	require.NoError(t, sink.Close())
}

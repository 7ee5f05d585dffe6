package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/observability"
	"github.com/MeKo-Tech/marisma/internal/pipeline"
	"github.com/MeKo-Tech/marisma/internal/scene"
	"github.com/MeKo-Tech/marisma/internal/testutil"
)

// fakeRunner fails the directories listed in fail.
type fakeRunner struct {
	fail  map[string]error
	calls atomic.Int32
	mu    sync.Mutex
	modes []pipeline.Mode
}

func (f *fakeRunner) Run(ctx context.Context, dir string, mode pipeline.Mode) (*pipeline.SceneResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	res := &pipeline.SceneResult{Dir: dir, Scene: filepath.Base(dir), Duration: time.Second}
	if err := f.fail[dir]; err != nil {
		res.Err, res.Error = err, err.Error()
		return res, err
	}
	return res, nil
}

type recordingProgress struct {
	mu       sync.Mutex
	total    int
	last     int
	errors   int
	complete bool
}

func (r *recordingProgress) OnStart(total int) { r.total = total }
func (r *recordingProgress) OnProgress(current, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = current
}
func (r *recordingProgress) OnComplete() { r.complete = true }
func (r *recordingProgress) OnError(int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func TestRun_ContinueOnError(t *testing.T) {
	dirs := []string{"/s/a", "/s/b", "/s/c", "/s/d"}
	boom := errors.New("boom")
	runner := &fakeRunner{fail: map[string]error{"/s/b": boom}}
	progress := &recordingProgress{}
	m := observability.NewMetricsForTesting()

	res, err := Run(context.Background(), runner, dirs, &Config{
		Workers: 2, ContinueOnError: true, Progress: progress, Metrics: m,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, len(dirs))
	for i, r := range res.Results {
		assert.Equal(t, dirs[i], r.Dir, "results keep input order")
	}
	assert.ErrorIs(t, res.Results[1].Err, boom)
	assert.EqualValues(t, 4, runner.calls.Load())
	for _, mode := range runner.modes {
		assert.Equal(t, pipeline.ModeFull, mode)
	}

	assert.Equal(t, 4, progress.total)
	assert.Equal(t, 4, progress.last)
	assert.Equal(t, 1, progress.errors)
	assert.True(t, progress.complete)
	assert.InDelta(t, 0, promtest.ToFloat64(m.PipelineRunning), 0)

	s := res.Stats()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, time.Second, s.AveragePerScene)
}

func TestRun_StopsOnFirstError(t *testing.T) {
	dirs := []string{"/s/a", "/s/b", "/s/c", "/s/d", "/s/e"}
	boom := errors.New("boom")
	runner := &fakeRunner{fail: map[string]error{"/s/a": boom}}

	res, err := Run(context.Background(), runner, dirs, &Config{Workers: 1, Mode: pipeline.ModeNormalize})
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "/s/a")
	assert.EqualValues(t, 1, runner.calls.Load(), "later scenes are not started")
	require.Len(t, res.Results, len(dirs))
	for _, r := range res.Results[1:] {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Equal(t, []pipeline.Mode{pipeline.ModeNormalize}, runner.modes)
}

func TestRun_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{}

	res, err := Run(ctx, runner, []string{"/s/a", "/s/b"}, &Config{Workers: 2, ContinueOnError: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, runner.calls.Load())
	assert.Equal(t, 2, res.Stats().Failed)
}

func TestRun_DurationFromClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := &fakeRunner{}
	res, err := Run(context.Background(), runner, []string{"/s/a"}, &Config{Clock: clock})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), res.Duration)
	assert.Equal(t, 1, res.WorkerCount)
}

func TestProcessBatch_StudyScenes(t *testing.T) {
	s := testutil.NewStudy(t)
	s.AddScene(t, testutil.OLIProduct, testutil.SceneOptions{Cloudy: []int{0}})
	s.AddScene(t, testutil.TMProduct, testutil.SceneOptions{Uncorrelated: []scene.BandName{scene.SWIR1}})

	cfg := pipeline.DefaultConfig()
	cfg.ReferenceDir = s.ReferenceDir
	cfg.AncillaryDir = s.AncillaryDir
	cfg.Masks[normalize.Unbalanced] = s.MaskPaths["unbalanced"]
	cfg.Masks[normalize.Balanced] = s.MaskPaths["balanced"]
	cfg.OutputDir = filepath.Join(s.Root, "out")
	cfg.Quicklooks = false
	pl, err := pipeline.NewBuilder(cfg).WithIO(s.Store, s.Store).Build()
	require.NoError(t, err)

	res, err := ProcessBatch(context.Background(), pl, []string{filepath.Join(s.Root, "scenes")},
		&Config{Workers: 2, ContinueOnError: true})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	// TM 2005 sorts before OLI 2023.
	tm, oli := res.Results[0], res.Results[1]
	assert.Equal(t, scene.TM, tm.Sensor)
	assert.ErrorIs(t, tm.Err, pipeline.ErrBandUnavailable)
	assert.Equal(t, []scene.BandName{scene.SWIR1}, tm.NotNormalized)
	assert.True(t, oli.OK())
	require.NotNil(t, oli.Area)
	assert.Equal(t, 1, oli.Area.InvalidPixels)

	s2 := res.Stats()
	assert.Equal(t, 1, s2.Succeeded)
	assert.Equal(t, 1, s2.Failed)
	assert.Equal(t, 1, s2.PartialBands)
}

func TestProcessBatch_NoScenes(t *testing.T) {
	_, err := ProcessBatch(context.Background(), &fakeRunner{}, []string{testutil.CreateTempDir(t)}, &Config{})
	assert.ErrorIs(t, err, ErrNoScenes)
}

package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/testutil"
)

const (
	oli2023 = "LC08_L2SP_202034_20230115_20230131_02_T1"
	oli2022 = "LC09_L2SP_202034_20221201_20221203_02_T1"
	tm2005  = "LT05_L2SP_202034_20050310_20200902_02_T1"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, testutil.EnsureDir(filepath.Join(root, d)))
	}
}

func TestDiscoverScenes_TopLevel(t *testing.T) {
	root := testutil.CreateTempDir(t)
	mkdirs(t, root, oli2023, oli2022, tm2005, "notes", filepath.Join("archive", "LC08_L2SP_202034_20200101_20200113_02_T1"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), nil, 0o600))

	dirs, err := DiscoverScenes([]string{root}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, tm2005),
		filepath.Join(root, oli2022),
		filepath.Join(root, oli2023),
	}, dirs, "ordered by acquisition date")
}

func TestDiscoverScenes_Recursive(t *testing.T) {
	root := testutil.CreateTempDir(t)
	nested := filepath.Join("archive", "2020", "LC08_L2SP_202034_20200101_20200113_02_T1")
	mkdirs(t, root, oli2023, nested, filepath.Join(oli2023, "LC08_L2SP_202034_20190101_20190113_02_T1"))

	dirs, err := DiscoverScenes([]string{root}, true, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, nested), filepath.Join(root, oli2023)}, dirs,
		"scene directories are not descended into")
}

func TestDiscoverScenes_Patterns(t *testing.T) {
	root := testutil.CreateTempDir(t)
	mkdirs(t, root, oli2023, oli2022, tm2005)

	dirs, err := DiscoverScenes([]string{root}, false, []string{"LC0*"}, []string{"LC09_*"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, oli2023)}, dirs)
}

func TestDiscoverScenes_SceneArgumentAndDuplicates(t *testing.T) {
	root := testutil.CreateTempDir(t)
	mkdirs(t, root, oli2023, tm2005)
	sceneDir := filepath.Join(root, oli2023)

	dirs, err := DiscoverScenes([]string{sceneDir, root}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, tm2005), sceneDir}, dirs)
}

func TestDiscoverScenes_Errors(t *testing.T) {
	_, err := DiscoverScenes([]string{"/non/existent"}, false, nil, nil)
	assert.Error(t, err)

	f := filepath.Join(testutil.CreateTempDir(t), "file.tif")
	require.NoError(t, os.WriteFile(f, nil, 0o600))
	_, err = DiscoverScenes([]string{f}, false, nil, nil)
	assert.ErrorContains(t, err, "not a directory")
}

func TestShouldIncludeScene(t *testing.T) {
	tests := []struct {
		name             string
		include, exclude []string
		want             bool
	}{
		{"no patterns", nil, nil, true},
		{"include match", []string{"LC08_*"}, nil, true},
		{"include miss", []string{"LT05_*"}, nil, false},
		{"exclude wins", []string{"LC08_*"}, []string{"*_T1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldIncludeScene("/data/"+oli2023, tt.include, tt.exclude))
		})
	}
}

package scene

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

func TestParseProductID(t *testing.T) {
	tests := []struct {
		name    string
		product string
		want    string
		sensor  Sensor
		wantErr error
	}{
		{
			name:    "landsat 8 oli",
			product: "LC08_L2SP_202034_20230115_20230131_02_T1",
			want:    "20230115l8oli202_34",
			sensor:  OLI,
		},
		{
			name:    "landsat 9 lower case",
			product: "lc09_l2sp_202034_20221002_20230321_02_t1",
			want:    "20221002l9oli202_34",
			sensor:  OLI,
		},
		{
			name:    "landsat 7 etm",
			product: "LE07_L2SP_202034_20010712_20200917_02_T1_SR_B1.TIF",
			want:    "20010712l7etm202_34",
			sensor:  ETM,
		},
		{
			name:    "landsat 5 tm",
			product: "LT05_L2SP_202034_19950406_20200912_02_T1",
			want:    "19950406l5tm202_34",
			sensor:  TM,
		},
		{name: "garbage", product: "scene.tif", wantErr: ErrBadProductID},
		{name: "bad date", product: "LC08_L2SP_202034_20231345_20230131_02_T1", wantErr: ErrBadProductID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseProductID(tt.product)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.String())
			assert.Equal(t, tt.sensor, id.Sensor)
		})
	}
}

func TestSensorClearCodes(t *testing.T) {
	assert.Equal(t, ClearCodes{Land: 21824, Water: 21952}, OLI.ClearCodes())
	assert.Equal(t, ClearCodes{Land: 5440, Water: 5504}, ETM.ClearCodes())
	assert.Equal(t, ClearCodes{Land: 5440, Water: 5504}, TM.ClearCodes())

	cc := OLI.ClearCodes()
	assert.True(t, cc.IsClear(21824))
	assert.True(t, cc.IsClear(21952))
	assert.False(t, cc.IsClear(22280))
}

func TestParseSensor(t *testing.T) {
	for in, want := range map[string]Sensor{"oli": OLI, "ETM+": ETM, "etm": ETM, " TM ": TM} {
		got, err := ParseSensor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSensor("msi")
	assert.ErrorIs(t, err, ErrUnknownSensor)
}

func TestIDDate(t *testing.T) {
	id, err := ParseProductID("LC08_L2SP_202034_20230115_20230131_02_T1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), id.Date)
	assert.Equal(t, 202, id.Path)
	assert.Equal(t, 34, id.Row)
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o600))
	}
}

func TestOpen_OLI(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "LC08_L2SP_202034_20230115_20230131_02_T1")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	p := "LC08_L2SP_202034_20230115_20230131_02_T1_"
	touch(t, dir, p+"SR_B1.TIF", p+"SR_B2.TIF", p+"SR_B3.TIF", p+"SR_B4.TIF",
		p+"SR_B5.TIF", p+"SR_B6.TIF", p+"SR_B7.TIF", p+"ST_B10.TIF", p+"QA_PIXEL.TIF", p+"MTL.txt")

	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "20230115l8oli202_34", s.Name())
	assert.Equal(t, filepath.Join(dir, p+"SR_B2.TIF"), s.Bands.Blue)
	assert.Equal(t, filepath.Join(dir, p+"SR_B5.TIF"), s.Bands.NIR)
	assert.Equal(t, filepath.Join(dir, p+"SR_B6.TIF"), s.Bands.SWIR1)
	assert.Equal(t, filepath.Join(dir, p+"ST_B10.TIF"), s.Bands.Thermal)
	assert.Equal(t, filepath.Join(dir, p+"QA_PIXEL.TIF"), s.Bands.QA)
}

func TestOpen_TMNumbering(t *testing.T) {
	dir := t.TempDir()
	p := "LT05_L2SP_202034_19950406_20200912_02_T1_"
	touch(t, dir, p+"SR_B1.TIF", p+"SR_B2.TIF", p+"SR_B3.TIF", p+"SR_B4.TIF",
		p+"SR_B5.TIF", p+"ST_B6.TIF", p+"SR_B7.TIF", p+"QA_PIXEL.TIF")

	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, TM, s.ID.Sensor)
	assert.Equal(t, filepath.Join(dir, p+"SR_B1.TIF"), s.Bands.Blue)
	assert.Equal(t, filepath.Join(dir, p+"SR_B5.TIF"), s.Bands.SWIR1)
	assert.Equal(t, filepath.Join(dir, p+"ST_B6.TIF"), s.Bands.Thermal)
}

func TestOpen_MissingBand(t *testing.T) {
	dir := t.TempDir()
	p := "LC08_L2SP_202034_20230115_20230131_02_T1_"
	touch(t, dir, p+"SR_B2.TIF", p+"SR_B3.TIF", p+"SR_B4.TIF", p+"SR_B5.TIF", p+"SR_B7.TIF")

	_, err := Open(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingBand)
	assert.Contains(t, err.Error(), "swir1")
	assert.Contains(t, err.Error(), "qa")
}

type memReader map[string]*raster.Band

func (m memReader) ReadBand(path string) (*raster.Band, error) {
	b, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return b, nil
}

func TestLoad_GridMismatch(t *testing.T) {
	s := &Scene{Bands: Bands{Blue: "b", Green: "g", Red: "r", NIR: "n", SWIR1: "s1", SWIR2: "s2", QA: "qa"}}
	r := memReader{}
	for _, p := range []string{"b", "g", "r", "n", "s1", "s2"} {
		r[p] = raster.FromValues(2, 2, make([]float32, 4))
	}
	r["qa"] = raster.FromValues(3, 1, make([]float32, 3))

	_, err := s.Load(r)
	assert.ErrorIs(t, err, raster.ErrGridMismatch)

	r["qa"] = raster.FromValues(2, 2, make([]float32, 4))
	loaded, err := s.Load(r)
	require.NoError(t, err)
	assert.NotNil(t, loaded.Band(NIR))
	assert.Nil(t, loaded.Thermal)
}

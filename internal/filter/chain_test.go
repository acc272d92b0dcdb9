package filter

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/sensor-features/internal/metrics"
	"github.com/flybeeper/sensor-features/internal/models"
	"github.com/flybeeper/sensor-features/pkg/utils"
)

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func testConfig() *FilterConfig {
	config := DefaultFilterConfig()
	config.Window = 3
	return config
}

func gpsRaw(t *testing.T, timestamps []float64) *models.Table {
	t.Helper()
	n := len(timestamps)
	lat := make([]float64, n)
	lon := make([]float64, n)
	ele := make([]float64, n)
	hdop := make([]float64, n)
	for i := range timestamps {
		lat[i] = -27.6 + float64(i)*0.0001
		lon[i] = -48.5 - float64(i)*0.0002
		ele[i] = 10 + float64(i)
		hdop[i] = 0.9
	}
	tbl := models.NewTable()
	require.NoError(t, tbl.AddNumeric("timestamp", timestamps))
	require.NoError(t, tbl.AddNumeric("latitude", lat))
	require.NoError(t, tbl.AddNumeric("longitude", lon))
	require.NoError(t, tbl.AddNumeric("elevation", ele))
	require.NoError(t, tbl.AddNumeric("hdop", hdop))
	return tbl
}

func accRaw(t *testing.T, timestamps []float64, offset float64) *models.Table {
	t.Helper()
	n := len(timestamps)
	acc := make([]float64, n)
	susp := make([]float64, n)
	mag := make([]float64, n)
	for i := range timestamps {
		acc[i] = offset + math.Sin(float64(i))
		susp[i] = offset + math.Cos(float64(i))
		mag[i] = 42
	}
	tbl := models.NewTable()
	require.NoError(t, tbl.AddNumeric("timestamp", timestamps))
	require.NoError(t, tbl.AddNumeric("acc_x", acc))
	require.NoError(t, tbl.AddNumeric("acc_x_suspension", susp))
	require.NoError(t, tbl.AddNumeric("mag_x", mag))
	return tbl
}

func labelsRaw(t *testing.T, timestamps []float64) *models.Table {
	t.Helper()
	n := len(timestamps)
	dirt := make([]float64, n)
	cobble := make([]float64, n)
	asphalt := make([]float64, n)
	for i := range timestamps {
		switch i % 3 {
		case 0:
			dirt[i] = 1
		case 1:
			cobble[i] = 1
		default:
			asphalt[i] = 1
		}
	}
	tbl := models.NewTable()
	require.NoError(t, tbl.AddNumeric("timestamp", timestamps))
	require.NoError(t, tbl.AddNumeric("dirt_road", dirt))
	require.NoError(t, tbl.AddNumeric("cobblestone_road", cobble))
	require.NoError(t, tbl.AddNumeric("asphalt_road", asphalt))
	return tbl
}

// twoSessionDataset две сессии: GPS пишет каждую секунду, акселерометры
// только в часть этих моментов
func twoSessionDataset(t *testing.T) *models.Dataset {
	t.Helper()
	ds := models.NewDataset()
	sessions := []struct {
		split models.Split
		name  string
	}{
		{models.Train, "PVS 1"},
		{models.Test, "PVS 2"},
	}
	for _, s := range sessions {
		gpsTs := []float64{1, 2, 3, 4, 5, 6, 7, 8}
		accTs := []float64{2, 3, 4, 5, 6, 9}
		require.NoError(t, ds.SetTable(s.split, models.SensorGPS, s.name, gpsRaw(t, gpsTs)))
		require.NoError(t, ds.SetTable(s.split, models.SensorMPULeft, s.name, accRaw(t, accTs, 0)))
		require.NoError(t, ds.SetTable(s.split, models.SensorMPURight, s.name, accRaw(t, accTs, 1)))
		require.NoError(t, ds.SetTable(s.split, models.SensorLabels, s.name, labelsRaw(t, accTs)))
	}
	return ds
}

func runChain(t *testing.T, config *FilterConfig, ds *models.Dataset) *RunResult {
	t.Helper()
	chain, err := NewChain(config, utils.NopLogger())
	require.NoError(t, err)
	result, err := chain.Run(ds)
	require.NoError(t, err)
	return result
}

func TestChain_EndToEnd(t *testing.T) {
	ds := twoSessionDataset(t)

	result := runChain(t, testConfig(), ds)
	require.NoError(t, result.Err())
	assert.Same(t, ds, result.Dataset)
	assert.Equal(t, 2, result.Statistics.SessionsMerged)

	for _, ref := range []struct {
		split   models.Split
		session string
	}{{models.Train, "PVS 1"}, {models.Test, "PVS 2"}} {
		gps, ok := ds.Table(ref.split, models.SensorGPS, ref.session)
		require.True(t, ok)
		assert.False(t, gps.Has("hdop"))
		assert.True(t, gps.Has("d_latitude"))
		assert.True(t, gps.Has("meters_elevation"))

		left, ok := ds.Table(ref.split, models.SensorMPULeft, ref.session)
		require.True(t, ok)
		assert.False(t, left.Has("mag_x"))
		assert.False(t, left.Has("acc_x_suspension"))
		// acc_x_suspension занимает имя acc_x, прежний acc_x сдвигается в acc_x_2
		accX, err := left.Numeric("acc_x")
		require.NoError(t, err)
		accX2, err := left.Numeric("acc_x_2")
		require.NoError(t, err)
		require.Len(t, accX, 6)
		for i := range accX {
			assert.InDelta(t, math.Cos(float64(i)), accX[i], 1e-12)
			assert.InDelta(t, math.Sin(float64(i)), accX2[i], 1e-12)
		}

		smoothed, err := left.Numeric("acc_x_smooth")
		require.NoError(t, err)
		raw, err := left.Numeric("acc_x")
		require.NoError(t, err)
		assert.Len(t, smoothed, len(raw))

		merged, ok := ds.Table(ref.split, models.SensorMerged, ref.session)
		require.True(t, ok)
		ts, err := merged.Numeric("timestamp")
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 3, 4, 5, 6}, ts)
		for _, name := range []string{"latitude", "acc_x", "acc_x_right", "acc_x_smooth", "acc_x_right_smooth", "d_latitude"} {
			assert.True(t, merged.Has(name), name)
		}
		mergedSmooth, _ := merged.Numeric("acc_x_smooth")
		assert.Len(t, mergedSmooth, merged.Len())

		labels, ok := ds.Table(ref.split, models.SensorLabels, ref.session)
		require.True(t, ok)
		roadType, err := labels.Categorical("road_type")
		require.NoError(t, err)
		assert.Equal(t, []string{"dirt_road", "cobblestone_road", "asphalt_road", "dirt_road", "cobblestone_road", "asphalt_road"}, roadType)
	}
}

func TestChain_CopyOnWrite(t *testing.T) {
	ds := twoSessionDataset(t)
	config := testConfig()
	config.InPlace = false

	result := runChain(t, config, ds)
	require.NoError(t, result.Err())
	assert.NotSame(t, ds, result.Dataset)

	gps, _ := ds.Table(models.Train, models.SensorGPS, "PVS 1")
	assert.True(t, gps.Has("hdop"))
	_, ok := ds.Table(models.Train, models.SensorMerged, "PVS 1")
	assert.False(t, ok)

	cleaned, _ := result.Dataset.Table(models.Train, models.SensorGPS, "PVS 1")
	assert.False(t, cleaned.Has("hdop"))
}

func assertSameDataset(t *testing.T, want, got *models.Dataset) {
	t.Helper()
	wantRefs := want.Refs()
	gotRefs := got.Refs()
	require.Equal(t, len(wantRefs), len(gotRefs))
	for i := range wantRefs {
		w, g := wantRefs[i], gotRefs[i]
		require.Equal(t, w.String(), g.String())
		if w.Table == nil {
			assert.Nil(t, g.Table)
			continue
		}
		require.Equal(t, w.Table.Names(), g.Table.Names(), w.String())
		for _, name := range w.Table.Names() {
			wc, _ := w.Table.Column(name)
			gc, _ := g.Table.Column(name)
			assert.Equal(t, wc.Kind, gc.Kind)
			assert.Equal(t, wc.Values, gc.Values, "%s %s", w.String(), name)
			assert.Equal(t, wc.Labels, gc.Labels, "%s %s", w.String(), name)
		}
	}
}

func TestChain_ParallelMatchesSequential(t *testing.T) {
	for _, strategy := range []string{StrategyLinear, StrategyGeodesic} {
		t.Run(strategy, func(t *testing.T) {
			sequential := testConfig()
			sequential.DistanceStrategy = strategy
			parallel := testConfig()
			parallel.DistanceStrategy = strategy
			parallel.Workers = 4

			seq := runChain(t, sequential, twoSessionDataset(t))
			par := runChain(t, parallel, twoSessionDataset(t))

			assert.Equal(t, seq.Statistics, par.Statistics)
			assertSameDataset(t, seq.Dataset, par.Dataset)
		})
	}
}

func TestChain_RerunIsIdempotent(t *testing.T) {
	config := testConfig()
	config.DistanceStrategy = StrategyGeodesic
	ds := twoSessionDataset(t)

	runChain(t, config, ds)
	once := ds.Clone()
	runChain(t, config, ds)

	assertSameDataset(t, once, ds)
}

func TestChain_PlaceholdersAndMissingColumnsAreSkipped(t *testing.T) {
	ds := twoSessionDataset(t)
	require.NoError(t, ds.SetTable(models.Val, models.SensorGPS, "PVS 3", nil))
	noMarkers := models.NewTable()
	require.NoError(t, noMarkers.AddNumeric("timestamp", []float64{1, 2}))
	require.NoError(t, noMarkers.AddNumeric("speed", []float64{3, 4}))
	require.NoError(t, ds.SetTable(models.Val, models.SensorMPULeft, "PVS 3", noMarkers))

	result := runChain(t, testConfig(), ds)
	require.NoError(t, result.Err())

	var smoothing *StageResult
	for _, s := range result.Stages {
		if s.Stage == StageSmoothing {
			smoothing = s
		}
	}
	require.NotNil(t, smoothing)
	// Акселерометры и merged обеих сессий; GPS, labels и таблица без acc_ пропущены
	assert.Equal(t, 6, smoothing.Statistics.TablesProcessed)
	assert.Equal(t, 5, smoothing.Statistics.TablesSkipped)
	assert.Equal(t, []string{"timestamp", "speed"}, noMarkers.Names())
}

func TestChain_StructuralIssuesSurface(t *testing.T) {
	t.Run("merge key mismatch", func(t *testing.T) {
		ds := twoSessionDataset(t)
		require.NoError(t, ds.SetTable(models.Val, models.SensorGPS, "PVS 3", gpsRaw(t, []float64{1, 2})))
		require.NoError(t, ds.SetTable(models.Val, models.SensorMPULeft, "PVS 3", accRaw(t, []float64{10, 11}, 0)))

		result := runChain(t, testConfig(), ds)
		err := result.Err()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMergeKeyMismatch))

		require.Len(t, result.Issues, 1)
		issue := result.Issues[0]
		assert.Equal(t, StageMerge, issue.Stage)
		assert.Equal(t, models.Val, issue.Split)
		assert.Equal(t, "PVS 3", issue.Session)

		_, ok := ds.Table(models.Val, models.SensorMerged, "PVS 3")
		assert.False(t, ok)
		// Остальные сессии обработаны полностью
		_, ok = ds.Table(models.Train, models.SensorMerged, "PVS 1")
		assert.True(t, ok)
	})

	t.Run("empty after cleaning", func(t *testing.T) {
		ds := twoSessionDataset(t)
		broken := gpsRaw(t, []float64{1, 2})
		require.NoError(t, broken.AddNumeric("speed", []float64{math.NaN(), math.NaN()}))
		require.NoError(t, ds.SetTable(models.Val, models.SensorGPS, "PVS 3", broken))

		result := runChain(t, testConfig(), ds)
		assert.True(t, errors.Is(result.Err(), ErrEmptyTable))
	})

	t.Run("single row track with geodesic distances", func(t *testing.T) {
		ds := twoSessionDataset(t)
		single := gpsRaw(t, []float64{1})
		require.NoError(t, ds.SetTable(models.Val, models.SensorGPS, "PVS 3", single))

		config := testConfig()
		config.DistanceStrategy = StrategyGeodesic
		result := runChain(t, config, ds)
		assert.True(t, errors.Is(result.Err(), ErrEmptyTable))

		require.Len(t, result.Issues, 1)
		assert.Equal(t, StageDistance, result.Issues[0].Stage)
		assert.Equal(t, "PVS 3", result.Issues[0].Session)
		assert.Equal(t, 1, single.Len())
		assert.False(t, single.Has(LatMetersCol))
	})

	t.Run("strict tie policy", func(t *testing.T) {
		ds := twoSessionDataset(t)
		labels, _ := ds.Table(models.Train, models.SensorLabels, "PVS 1")
		require.NoError(t, labels.AddNumeric("asphalt_road", []float64{1, 1, 1, 1, 1, 1}))

		config := testConfig()
		config.TiePolicy = TieStrict
		result := runChain(t, config, ds)
		assert.True(t, errors.Is(result.Err(), ErrAmbiguousLabel))
		assert.False(t, labels.Has("road_type"))
	})
}

func TestChain_VerboseProgress(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		base, hook := test.NewNullLogger()
		base.SetLevel(logrus.InfoLevel)

		config := testConfig()
		config.Verbose = verbose
		chain, err := NewChain(config, utils.NewLoggerFrom(base))
		require.NoError(t, err)
		_, err = chain.Run(twoSessionDataset(t))
		require.NoError(t, err)

		smoothed := 0
		for _, entry := range hook.AllEntries() {
			if entry.Message == "Smoothed column" {
				smoothed++
				assert.Equal(t, logrus.InfoLevel, entry.Level)
				assert.Contains(t, entry.Data, "column")
				assert.Contains(t, entry.Data, "table")
			}
		}
		if verbose {
			assert.Positive(t, smoothed)
		} else {
			assert.Zero(t, smoothed)
		}
	}
}

func TestChain_RecordsMetrics(t *testing.T) {
	before := testutil.ToFloat64(metrics.TablesProcessed.WithLabelValues(StageSanitize))
	runChain(t, testConfig(), twoSessionDataset(t))
	after := testutil.ToFloat64(metrics.TablesProcessed.WithLabelValues(StageSanitize))

	// GPS и два акселерометра в каждой из двух сессий
	assert.Equal(t, before+6, after)
}

func TestChain_StagesFromConfig(t *testing.T) {
	config := testConfig()
	config.EnableMerge = false
	config.LabelGroups = nil

	chain, err := NewChain(config, utils.NopLogger())
	require.NoError(t, err)

	names := make([]string, 0)
	for _, s := range chain.Stages() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{StageSanitize, StageSmoothing, StageDistance}, names)
	assert.Equal(t, "Chain of stages: [sanitize smoothing distance]", chain.Description())

	config.Window = 0
	_, err = NewChain(config, utils.NopLogger())
	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

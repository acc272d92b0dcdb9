package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/flybeeper/sensor-features/internal/metrics"
	"github.com/flybeeper/sensor-features/internal/models"
	"github.com/flybeeper/sensor-features/pkg/utils"
)

// CSVExt расширение файлов таблиц
const CSVExt = ".csv"

// Значения, которые считаются пропуском при чтении CSV
var naValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL"}

// Форматы строковых временных меток
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// CSVRepository загружает датасет из каталога сессий с CSV файлами.
// Каждый подкаталог корня является сессией, файл относится к сенсору,
// ключ которого содержится в его имени.
type CSVRepository struct {
	root    string
	sensors []models.SensorType
	logger  *utils.Logger
}

// NewCSVRepository создает репозиторий с корнем root и стандартным набором сенсоров
func NewCSVRepository(root string, logger *utils.Logger) *CSVRepository {
	return &CSVRepository{
		root:    root,
		sensors: models.RawSensorTypes,
		logger:  logger,
	}
}

// Root возвращает корневой каталог данных
func (r *CSVRepository) Root() string {
	return r.root
}

// SensorFor определяет тип сенсора по имени файла. Если подходят несколько
// ключей, выбирается самый длинный: dataset_gps_mpu_left.csv относится
// к gps_mpu_left, а не к t_gps.
func SensorFor(filename string, sensors []models.SensorType) (models.SensorType, bool) {
	var best models.SensorType
	for _, sensor := range sensors {
		if strings.Contains(filename, string(sensor)) && len(sensor) > len(best) {
			best = sensor
		}
	}
	return best, best != ""
}

// SplitFor определяет выборку сессии: тестовый список приоритетнее валидационного
func SplitFor(session string, opts LoadOptions) models.Split {
	for _, s := range opts.ExcludeTest {
		if s == session {
			return models.Test
		}
	}
	for _, s := range opts.ExcludeVal {
		if s == session {
			return models.Val
		}
	}
	return models.Train
}

// LoadDataset читает все сессии корневого каталога. Отмена контекста
// проверяется между сессиями.
func (r *CSVRepository) LoadDataset(ctx context.Context, opts LoadOptions) (*models.Dataset, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", r.root, err)
	}

	ds := models.NewDataset()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		session := entry.Name()
		split := SplitFor(session, opts)
		if err := r.loadSession(ds, split, session, opts); err != nil {
			return nil, err
		}
		metrics.SessionsLoaded.WithLabelValues(split.String()).Inc()
	}

	for _, session := range append(append([]string(nil), opts.ExcludeTest...), opts.ExcludeVal...) {
		if _, ok := ds.SplitOf(session); !ok {
			r.logger.WithField("session", session).Debug("Excluded session not found in data dir")
		}
	}

	r.logger.WithField("root", r.root).
		WithField("train", len(ds.Sessions(models.Train))).
		WithField("val", len(ds.Sessions(models.Val))).
		WithField("test", len(ds.Sessions(models.Test))).
		Info("Dataset loaded")

	return ds, nil
}

func (r *CSVRepository) loadSession(ds *models.Dataset, split models.Split, session string, opts LoadOptions) error {
	dir := filepath.Join(r.root, session)
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read session dir %s: %w", dir, err)
	}
	if err := ds.AddSession(split, session); err != nil {
		return err
	}

	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.EqualFold(filepath.Ext(name), CSVExt) {
			continue
		}
		sensor, ok := SensorFor(name, r.sensors)
		if !ok {
			r.logger.WithField("session", session).WithField("file", name).Debug("Unrecognized file skipped")
			continue
		}
		if _, exists := ds.Table(split, sensor, session); exists {
			r.logger.WithField("session", session).
				WithField("file", name).
				WithField("sensor", sensor).
				Debug("Sensor already loaded for session, file skipped")
			continue
		}

		path := filepath.Join(dir, name)
		table, err := ReadTable(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		if err := ds.SetTable(split, sensor, session, table); err != nil {
			return err
		}
		metrics.TablesLoaded.WithLabelValues(string(sensor)).Inc()
		if table.Len() == 0 {
			r.logger.WithField("session", session).
				WithField("file", name).
				WithField("sensor", sensor).
				Warn("Sensor file has no rows")
		}

		r.logger.WithField("file", name).
			WithField("session", session).
			WithField("split", split.String()).
			WithField("rows", table.Len()).
			WithField("columns", table.Width()).
			Progress(opts.Verbose, "Loaded table")
	}

	for _, sensor := range r.sensors {
		if _, ok := ds.Table(split, sensor, session); ok {
			continue
		}
		metrics.FilesMissing.WithLabelValues(string(sensor)).Inc()
		log := r.logger.WithField("session", session).WithField("sensor", sensor)
		if opts.Verbose {
			log.Warn("Expected sensor file missing")
		} else {
			log.Debug("Expected sensor file missing")
		}
	}
	return nil
}

// ReadTable читает таблицу из CSV файла
func ReadTable(path string) (*models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeTable(f)
}

// DecodeTable разбирает CSV с заголовком. Числовые и логические колонки становятся
// Numeric, строковые Categorical. Строковый timestamp переводится в секунды Unix,
// если все значения разбираются одним из поддерживаемых форматов.
// Файл только с заголовком дает таблицу без строк, пустой файл дает пустую таблицу.
func DecodeTable(r io.Reader) (*models.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.NewTable(), nil
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(naValues),
	)
	if df.Err != nil {
		if t, ok := headerOnlyTable(data); ok {
			return t, nil
		}
		return nil, fmt.Errorf("parse csv: %w", df.Err)
	}

	t := models.NewTable()
	for _, name := range df.Names() {
		if err := t.SetColumn(columnFromSeries(name, df.Col(name))); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// headerOnlyTable строит таблицу без строк, если в CSV есть только заголовок.
// Без заголовка gota читает его как единственную строку данных.
func headerOnlyTable(data []byte) (*models.Table, bool) {
	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(false),
		dataframe.DetectTypes(false),
	)
	if df.Err != nil || df.Nrow() != 1 {
		return nil, false
	}
	records := df.Records()
	t := models.NewTable()
	for _, name := range records[len(records)-1] {
		if err := t.AddNumeric(name, []float64{}); err != nil {
			return nil, false
		}
	}
	return t, true
}

func columnFromSeries(name string, s series.Series) *models.Column {
	if s.Type() != series.String {
		return &models.Column{Name: name, Kind: models.Numeric, Values: s.Float()}
	}

	records := s.Records()
	missing := s.IsNaN()
	if name == models.TimestampColumn {
		if values, ok := parseTimestamps(records, missing); ok {
			return &models.Column{Name: name, Kind: models.Numeric, Values: values}
		}
	}

	labels := make([]string, len(records))
	for i, rec := range records {
		if !missing[i] {
			labels[i] = rec
		}
	}
	return &models.Column{Name: name, Kind: models.Categorical, Labels: labels}
}

func parseTimestamps(records []string, missing []bool) ([]float64, bool) {
	values := make([]float64, len(records))
	for i, rec := range records {
		if missing[i] {
			values[i] = math.NaN()
			continue
		}
		ts, ok := parseTimestamp(rec)
		if !ok {
			return nil, false
		}
		values[i] = float64(ts.UnixNano()) / float64(time.Second)
	}
	return values, true
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// SaveDataset сохраняет все непустые таблицы в <dir>/<split>/<session>/<sensor>.csv
func (r *CSVRepository) SaveDataset(ctx context.Context, ds *models.Dataset, dir string) error {
	saved := 0
	for _, ref := range ds.Refs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ref.Table == nil {
			continue
		}
		sessionDir := filepath.Join(dir, ref.Split.String(), ref.Session)
		if err := os.MkdirAll(sessionDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", sessionDir, err)
		}
		path := filepath.Join(sessionDir, string(ref.Sensor)+CSVExt)
		if err := WriteTable(path, ref.Table); err != nil {
			return fmt.Errorf("failed to save %s: %w", ref, err)
		}
		saved++
	}

	r.logger.WithField("dir", dir).WithField("tables", saved).Info("Dataset saved")
	return nil
}

// WriteTable записывает таблицу в CSV файл
func WriteTable(path string, t *models.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeTable(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeTable записывает таблицу как CSV с заголовком. Числа записываются
// в кратчайшем точном представлении, пропуски как NaN.
func EncodeTable(w io.Writer, t *models.Table) error {
	if t.Width() == 0 {
		return nil
	}
	cols := make([]series.Series, 0, t.Width())
	for _, name := range t.Names() {
		c, _ := t.Column(name)
		records := c.Labels
		if c.Kind == models.Numeric {
			records = make([]string, len(c.Values))
			for i, v := range c.Values {
				records[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		cols = append(cols, series.New(records, series.String, name))
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return fmt.Errorf("build frame: %w", df.Err)
	}
	return df.WriteCSV(w)
}

package models

import (
	"fmt"
	"sort"
	"strings"
)

// Split раздел датасета
type Split int

const (
	Train Split = iota
	Val
	Test
)

// Splits все разделы в порядке обхода
var Splits = []Split{Train, Val, Test}

// String возвращает имя раздела
func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Val:
		return "val"
	case Test:
		return "test"
	default:
		return "unknown"
	}
}

// SensorType тип таблицы сенсора, совпадает с фрагментом имени файла
type SensorType string

const (
	SensorGPS      SensorType = "t_gps"
	SensorMPULeft  SensorType = "gps_mpu_left"
	SensorMPURight SensorType = "gps_mpu_right"
	SensorLabels   SensorType = "labels"
	// SensorMerged производная таблица, результат объединения по timestamp
	SensorMerged SensorType = "merged"
)

// RawSensorTypes типы таблиц, которые загружаются с диска
var RawSensorTypes = []SensorType{SensorGPS, SensorMPULeft, SensorMPURight, SensorLabels}

// IsAccelerometer проверяет, является ли тип таблицей акселерометра
func (s SensorType) IsAccelerometer() bool {
	return strings.Contains(string(s), "left") || strings.Contains(string(s), "right")
}

// IsGPS проверяет, является ли тип таблицей GPS
func (s SensorType) IsGPS() bool {
	return strings.Contains(string(s), "t_gps")
}

// SplitData таблицы одного раздела
type SplitData struct {
	Sessions []string
	Tables   map[SensorType]map[string]*Table
}

func newSplitData() *SplitData {
	return &SplitData{
		Sessions: make([]string, 0),
		Tables:   make(map[SensorType]map[string]*Table),
	}
}

// Dataset типизированный набор таблиц: раздел -> тип сенсора -> сессия -> таблица
type Dataset struct {
	splits    map[Split]*SplitData
	sessionOf map[string]Split
}

// NewDataset создает пустой датасет со всеми разделами
func NewDataset() *Dataset {
	ds := &Dataset{
		splits:    make(map[Split]*SplitData, len(Splits)),
		sessionOf: make(map[string]Split),
	}
	for _, s := range Splits {
		ds.splits[s] = newSplitData()
	}
	return ds
}

// AddSession регистрирует сессию в разделе. Сессия принадлежит ровно одному разделу.
func (d *Dataset) AddSession(split Split, session string) error {
	if current, ok := d.sessionOf[session]; ok {
		if current != split {
			return fmt.Errorf("session %s already assigned to %s, cannot add to %s", session, current, split)
		}
		return nil
	}
	sd, ok := d.splits[split]
	if !ok {
		return fmt.Errorf("unknown split %d", split)
	}
	d.sessionOf[session] = split
	sd.Sessions = append(sd.Sessions, session)
	return nil
}

// SplitOf возвращает раздел сессии
func (d *Dataset) SplitOf(session string) (Split, bool) {
	s, ok := d.sessionOf[session]
	return s, ok
}

// Sessions возвращает сессии раздела в порядке добавления
func (d *Dataset) Sessions(split Split) []string {
	sd, ok := d.splits[split]
	if !ok {
		return nil
	}
	return append([]string(nil), sd.Sessions...)
}

// Table возвращает таблицу сессии
func (d *Dataset) Table(split Split, sensor SensorType, session string) (*Table, bool) {
	sd, ok := d.splits[split]
	if !ok {
		return nil, false
	}
	t, ok := sd.Tables[sensor][session]
	return t, ok
}

// SetTable сохраняет таблицу; сессия регистрируется в разделе при необходимости.
// nil допустим как заглушка отсутствующей таблицы.
func (d *Dataset) SetTable(split Split, sensor SensorType, session string, t *Table) error {
	if err := d.AddSession(split, session); err != nil {
		return err
	}
	sd := d.splits[split]
	bySession, ok := sd.Tables[sensor]
	if !ok {
		bySession = make(map[string]*Table)
		sd.Tables[sensor] = bySession
	}
	bySession[session] = t
	return nil
}

// SensorTypes возвращает типы сенсоров раздела в отсортированном порядке
func (d *Dataset) SensorTypes(split Split) []SensorType {
	sd, ok := d.splits[split]
	if !ok {
		return nil
	}
	types := make([]SensorType, 0, len(sd.Tables))
	for st := range sd.Tables {
		types = append(types, st)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// TableRef адрес таблицы в датасете
type TableRef struct {
	Split   Split
	Sensor  SensorType
	Session string
	Table   *Table
}

// String возвращает читаемый адрес таблицы
func (r TableRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Split, r.Sensor, r.Session)
}

// Refs возвращает все таблицы датасета в детерминированном порядке:
// раздел, тип сенсора, порядок сессий в разделе. Заглушки (nil) включаются.
func (d *Dataset) Refs() []TableRef {
	refs := make([]TableRef, 0)
	for _, split := range Splits {
		sd := d.splits[split]
		for _, sensor := range d.SensorTypes(split) {
			bySession := sd.Tables[sensor]
			for _, session := range sd.Sessions {
				t, ok := bySession[session]
				if !ok {
					continue
				}
				refs = append(refs, TableRef{Split: split, Sensor: sensor, Session: session, Table: t})
			}
		}
	}
	return refs
}

// Clone возвращает глубокую копию датасета
func (d *Dataset) Clone() *Dataset {
	out := NewDataset()
	for _, split := range Splits {
		sd := d.splits[split]
		for _, session := range sd.Sessions {
			_ = out.AddSession(split, session)
		}
		for sensor, bySession := range sd.Tables {
			copied := make(map[string]*Table, len(bySession))
			for session, t := range bySession {
				if t != nil {
					copied[session] = t.Clone()
				} else {
					copied[session] = nil
				}
			}
			out.splits[split].Tables[sensor] = copied
		}
	}
	return out
}

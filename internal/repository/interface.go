package repository

import (
	"context"

	"github.com/flybeeper/sensor-features/internal/models"
)

// LoadOptions параметры загрузки датасета
type LoadOptions struct {
	// Сессии, относящиеся к валидационной выборке
	ExcludeVal []string
	// Сессии, относящиеся к тестовой выборке (приоритетнее ExcludeVal)
	ExcludeTest []string
	// Отсутствующие файлы сенсоров логируются на уровне warn, прогресс на info
	Verbose bool
}

// Repository интерфейс для загрузки и сохранения датасета
type Repository interface {
	// LoadDataset читает все сессии и распределяет их по выборкам
	LoadDataset(ctx context.Context, opts LoadOptions) (*models.Dataset, error)

	// SaveDataset сохраняет таблицы датасета в каталог dir
	SaveDataset(ctx context.Context, ds *models.Dataset, dir string) error
}

// Ensure implementations
var _ Repository = (*CSVRepository)(nil)

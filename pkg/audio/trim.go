package audio

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultTrimSamples количество отсчетов, отрезаемых с конца записи.
// Конец записи содержит щелчок от завершения записи на линии.
const DefaultTrimSamples = 2000

// Trim удаляет последние lose отсчетов из файла path.
// Файл переписывается во временный рядом с исходным и затем
// заменяет его. Возвращает количество оставшихся отсчетов.
func Trim(store Store, path string, lose int64) (int64, error) {
	info, err := store.Stat(path)
	if err != nil {
		return 0, errors.Wrap(err, "trim")
	}

	keep := info.Samples - lose
	if keep < 0 {
		keep = 0
	}

	tmp := tempPath(path)
	if err := store.CopySamples(info, tmp, keep); err != nil {
		_ = store.Remove(tmp)
		return 0, errors.Wrapf(err, "trim %s", path)
	}

	if err := store.Replace(tmp, path); err != nil {
		_ = store.Remove(tmp)
		return 0, errors.Wrapf(err, "trim %s", path)
	}

	return keep, nil
}

// tempPath заменяет расширение path случайным суффиксом
func tempPath(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + "." + uuid.NewString()
}

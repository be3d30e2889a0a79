package stream

import (
	"fmt"

	"vidstream/internal/domain"
)

// Slice описывает участок одного чанка: [SliceStart, SliceEnd) в байтах
// внутри чанка ChunkIndex
type Slice struct {
	ChunkIndex int
	SliceStart int64
	SliceEnd   int64
}

// Length возвращает длину участка в байтах
func (s Slice) Length() int64 {
	return s.SliceEnd - s.SliceStart
}

// PlanLength возвращает суммарную длину плана в байтах
func PlanLength(plan []Slice) int64 {
	var total int64
	for _, s := range plan {
		total += s.Length()
	}
	return total
}

// BuildPlan вычисляет по манифесту упорядоченный список участков чанков,
// покрывающий диапазон [start, end] логического объекта. Функция чистая:
// ни сети, ни хранилища, только арифметика над манифестом.
//
// end задается включительно и обрезается по размеру объекта.
func BuildPlan(m *domain.Manifest, start, end int64) ([]Slice, error) {
	if m == nil || m.TotalChunks == 0 || len(m.Chunks) == 0 {
		return nil, fmt.Errorf("manifest has no chunks: %w", domain.ErrInvalidArgument)
	}
	if m.ChunkSizeBytes <= 0 || m.TotalSizeBytes <= 0 {
		return nil, fmt.Errorf("manifest has invalid sizes: %w", domain.ErrInvalidArgument)
	}
	if start < 0 {
		return nil, fmt.Errorf("range start %d is negative: %w", start, domain.ErrInvalidArgument)
	}
	if start >= m.TotalSizeBytes {
		return nil, fmt.Errorf("range start %d beyond object size %d: %w",
			start, m.TotalSizeBytes, domain.ErrRangeNotSatisfiable)
	}
	if start > end {
		return nil, fmt.Errorf("range start %d greater than end %d: %w", start, end, domain.ErrInvalidArgument)
	}

	// Конец диапазона обрезается, а не отвергается
	if end > m.TotalSizeBytes-1 {
		end = m.TotalSizeBytes - 1
	}

	plan := make([]Slice, 0, domain.CountChunks(end-start+1, m.ChunkSizeBytes)+1)
	for _, chunk := range m.Chunks {
		absStart := int64(chunk.Index) * m.ChunkSizeBytes
		absEnd := absStart + chunk.SizeBytes - 1

		if absEnd < start {
			continue
		}
		if absStart > end {
			break
		}

		sliceStart := int64(0)
		if start > absStart {
			sliceStart = start - absStart
		}

		sliceEnd := chunk.SizeBytes
		if end-absStart+1 < sliceEnd {
			sliceEnd = end - absStart + 1
		}

		plan = append(plan, Slice{
			ChunkIndex: chunk.Index,
			SliceStart: sliceStart,
			SliceEnd:   sliceEnd,
		})
	}

	return plan, nil
}

package ingest

import (
	"runtime"

	"go.uber.org/zap"
)

// ResourceGuard hält den Speicherbedarf des Laufs unter Kontrolle. Nach
// jedem Chunk wird der Heap geprüft; oberhalb der Schwelle wird eine
// Garbage Collection erzwungen und die Batchgröße bis zum Minimum
// halbiert. Der Guard ist rein beratend und bricht nie ab.
type ResourceGuard struct {
	limitBytes   uint64
	minBatchSize int
	log          *zap.Logger
	// Trims zählt, wie oft die Batchgröße reduziert wurde.
	Trims int
}

// NewResourceGuard erzeugt einen Guard mit Heap-Schwelle in Megabyte.
func NewResourceGuard(limitMB, minBatchSize int, log *zap.Logger) *ResourceGuard {
	if minBatchSize < 1 {
		minBatchSize = 1
	}
	return &ResourceGuard{
		limitBytes:   uint64(limitMB) * 1024 * 1024,
		minBatchSize: minBatchSize,
		log:          log,
	}
}

// CheckAfterChunk gibt die für den nächsten Batch empfohlene Größe
// zurück. batchSize bleibt unverändert, solange der Heap unter der
// Schwelle liegt.
func (g *ResourceGuard) CheckAfterChunk(batchSize int) int {
	if g.limitBytes == 0 {
		return batchSize
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc <= g.limitBytes {
		return batchSize
	}

	runtime.GC()
	if batchSize <= g.minBatchSize {
		return g.minBatchSize
	}
	next := batchSize / 2
	if next < g.minBatchSize {
		next = g.minBatchSize
	}
	g.Trims++
	g.log.Warn("Heap über Schwelle, Batchgröße reduziert",
		zap.Uint64("heap_mb", m.HeapAlloc/1024/1024),
		zap.Uint64("limit_mb", g.limitBytes/1024/1024),
		zap.Int("batch_alt", batchSize),
		zap.Int("batch_neu", next))
	return next
}

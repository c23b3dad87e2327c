package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGuardDisabledKeepsBatchSize(t *testing.T) {
	g := NewResourceGuard(0, 50, zap.NewNop())
	assert.Equal(t, 500, g.CheckAfterChunk(500))
	assert.Zero(t, g.Trims)
}

func TestGuardHalvesAboveLimit(t *testing.T) {
	// 1 MB Schwelle liegt sicher unter dem Heap des Testprozesses.
	ballast := make([]byte, 4*1024*1024)
	defer func() { _ = ballast }()

	g := NewResourceGuard(1, 50, zap.NewNop())
	assert.Equal(t, 250, g.CheckAfterChunk(500))
	assert.Equal(t, 125, g.CheckAfterChunk(250))
	assert.Equal(t, 2, g.Trims)
}

func TestGuardRespectsFloor(t *testing.T) {
	ballast := make([]byte, 4*1024*1024)
	defer func() { _ = ballast }()

	g := NewResourceGuard(1, 50, zap.NewNop())
	assert.Equal(t, 50, g.CheckAfterChunk(80))
	assert.Equal(t, 50, g.CheckAfterChunk(50))
}

package memory

import (
	"fmt"
	"sync"
	"time"

	"rotoscope/internal/logger"
	"rotoscope/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// DefaultLimit caps live Mat bytes handed out through GetMat.
const DefaultLimit int64 = 2 * 1024 * 1024 * 1024

type Manager struct {
	pools       map[PoolKey]*Pool
	allocations map[uint64]*AllocationRecord
	mu          sync.RWMutex
	stats       Stats
	logger      logger.Logger
	poolSize    int
}

type PoolKey struct {
	Rows    int
	Cols    int
	MatType gocv.MatType
}

type AllocationRecord struct {
	Tag       string
	CreatedAt time.Time
	Size      int64
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PoolHits       int64
	PoolMisses     int64
	MaxAllowed     int64
}

// InUse is the number of bytes currently held by live tracked Mats.
func (s Stats) InUse() int64 {
	return s.TotalAllocated - s.TotalReleased
}

func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		pools:       make(map[PoolKey]*Pool),
		allocations: make(map[uint64]*AllocationRecord),
		stats: Stats{
			MaxAllowed: DefaultLimit,
		},
		logger:   log,
		poolSize: 5,
	}
}

// SetLimit changes the live-bytes ceiling; values <= 0 disable it.
func (m *Manager) SetLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.MaxAllowed = limit
}

func (m *Manager) TrackAllocation(id uint64, size int64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocations[id] = &AllocationRecord{Tag: tag, CreatedAt: time.Now(), Size: size}
	m.stats.TotalAllocated += size
	m.stats.ActiveMats++
}

func (m *Manager) TrackDeallocation(id uint64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.allocations[id]
	if !exists {
		m.logger.Warning("MemoryManager", "release of untracked Mat", map[string]interface{}{
			"id":  id,
			"tag": tag,
		})
		return
	}
	delete(m.allocations, id)
	m.stats.TotalReleased += record.Size
	m.stats.ActiveMats--
}

// GetMat returns a pooled Mat of the given shape or allocates a tracked one.
// Pooled Mats keep their previous contents.
func (m *Manager) GetMat(rows, cols int, matType gocv.MatType, tag string) (*safe.Mat, error) {
	key := PoolKey{Rows: rows, Cols: cols, MatType: matType}

	m.mu.Lock()
	if m.stats.MaxAllowed > 0 && m.stats.InUse() > m.stats.MaxAllowed {
		inUse := m.stats.InUse()
		m.mu.Unlock()
		return nil, fmt.Errorf("memory limit exceeded: %d bytes allocated", inUse)
	}

	if pool, exists := m.pools[key]; exists {
		if mat := pool.Get(); mat != nil {
			m.stats.PoolHits++
			m.mu.Unlock()
			return mat, nil
		}
	}
	m.stats.PoolMisses++
	m.mu.Unlock()

	// Allocation reports back through TrackAllocation, which takes the lock.
	return safe.NewMatWithTracker(rows, cols, matType, m, tag)
}

// ReleaseMat parks mat in its shape pool, closing it when the pool is full.
func (m *Manager) ReleaseMat(mat *safe.Mat) {
	if mat == nil || !mat.IsValid() {
		return
	}

	key := PoolKey{Rows: mat.Rows(), Cols: mat.Cols(), MatType: mat.Type()}

	m.mu.Lock()
	pool, exists := m.pools[key]
	if !exists {
		pool = NewPool(m.poolSize)
		m.pools[key] = pool
	}
	pooled := pool.Put(mat)
	m.mu.Unlock()

	if !pooled {
		mat.Close()
	}
}

func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Cleanup closes every pooled Mat.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[PoolKey]*Pool)
	m.mu.Unlock()

	matCount := 0
	for _, pool := range pools {
		matCount += pool.Cleanup()
	}

	m.logger.Debug("MemoryManager", "pools cleaned up", map[string]interface{}{
		"closed": matCount,
	})
}

// Shutdown lets the shutdown manager drain the pools.
func (m *Manager) Shutdown() {
	m.Cleanup()
}

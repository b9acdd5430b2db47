package safe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type recordingTracker struct {
	mu    sync.Mutex
	alloc map[uint64]int64
	freed map[uint64]bool
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{alloc: map[uint64]int64{}, freed: map[uint64]bool{}}
}

func (r *recordingTracker) TrackAllocation(id uint64, size int64, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alloc[id] = size
}

func (r *recordingTracker) TrackDeallocation(id uint64, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freed[id] = true
}

func TestNewMatRejectsInvalidDimensions(t *testing.T) {
	_, err := NewMat(0, 10, gocv.MatTypeCV8UC1)
	assert.Error(t, err)

	_, err = NewMat(10, -1, gocv.MatTypeCV8UC3)
	assert.Error(t, err)
}

func TestMatLifecycle(t *testing.T) {
	m, err := NewMat(4, 6, gocv.MatTypeCV8UC3)
	require.NoError(t, err)

	assert.True(t, m.IsValid())
	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 6, m.Cols())
	assert.Equal(t, 3, m.Channels())

	m.Close()
	assert.False(t, m.IsValid())
	assert.True(t, m.Empty())
	assert.Zero(t, m.Rows())

	// Double close is a no-op.
	m.Close()
}

func TestCloneIsIndependent(t *testing.T) {
	m, err := NewMat(2, 2, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.SetUCharAt(0, 0, 10))

	c, err := m.Clone()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, m.SetUCharAt(0, 0, 200))
	v, err := c.GetUCharAt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), v)
	assert.NotEqual(t, m.ID(), c.ID())
}

func TestAccessorsRejectOutOfBounds(t *testing.T) {
	m, err := NewMat(2, 3, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.GetUCharAt(2, 0)
	assert.Error(t, err)
	assert.Error(t, m.SetUCharAt(0, 3, 1))

	_, err = m.GetUCharAt3(0, 0, 1)
	assert.Error(t, err, "single-channel Mat has no channel 1")
}

func TestTrackerSeesAllocationAndRelease(t *testing.T) {
	tracker := newRecordingTracker()
	m, err := NewMatWithTracker(10, 10, gocv.MatTypeCV8UC3, tracker, "frame")
	require.NoError(t, err)

	assert.Equal(t, int64(300), tracker.alloc[m.ID()])
	m.Close()
	assert.True(t, tracker.freed[m.ID()])
}

func TestWrapTakesOwnership(t *testing.T) {
	raw := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV8UC1)
	m, err := Wrap(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Rows())
	m.Close()

	_, err = Wrap(gocv.NewMat())
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.Error(t, ValidateMatForOperation(nil, "op"))

	gray, err := NewMat(2, 2, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer gray.Close()
	color, err := NewMat(2, 3, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	defer color.Close()

	assert.NoError(t, ValidateChannels(gray, "op", 1))
	assert.Error(t, ValidateChannels(gray, "op", 3, 4))
	assert.Error(t, ValidateSameSize(gray, color, "op"))
	assert.Error(t, ValidateDimensions(40000, 10, "op"))
	assert.NoError(t, ValidateMatType(gocv.MatTypeCV8UC3, "op"))
	assert.Error(t, ValidateMatType(gocv.MatTypeCV32FC1, "op"))
}

package models

import (
	"fmt"
	"sync"
	"time"
)

// ProcessingState represents the current state of a filter run
type ProcessingState struct {
	IsActive          bool
	Method            string
	CurrentStage      string
	Progress          float64
	StartTime         time.Time
	EstimatedDuration time.Duration
	Cancelled         bool
	Err               error
}

// Elapsed returns time since processing started, or zero when never started
func (s ProcessingState) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	return time.Since(s.StartTime)
}

// Remaining estimates the time left from EstimatedDuration
func (s ProcessingState) Remaining() time.Duration {
	if !s.IsActive || s.EstimatedDuration == 0 {
		return 0
	}
	left := s.EstimatedDuration - s.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

// ValidationError represents a parameter validation error
type ValidationError struct {
	Parameter string
	Value     interface{}
	Message   string
}

// NewValidationError creates a new validation error
func NewValidationError(parameter string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Value:     value,
		Message:   message,
	}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for parameter '%s' with value '%v': %s",
		ve.Parameter, ve.Value, ve.Message)
}

// ProcessingStateRepository manages processing state
type ProcessingStateRepository struct {
	mu    sync.RWMutex
	state ProcessingState
}

func NewProcessingStateRepository() *ProcessingStateRepository {
	return &ProcessingStateRepository{}
}

// GetState returns a snapshot of the current processing state
func (psr *ProcessingStateRepository) GetState() ProcessingState {
	psr.mu.RLock()
	defer psr.mu.RUnlock()
	return psr.state
}

// StartProcessing marks processing as active. It returns false when a run is
// already active so callers can reject overlapping work.
func (psr *ProcessingStateRepository) StartProcessing(method string) bool {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	if psr.state.IsActive {
		return false
	}

	psr.state = ProcessingState{
		IsActive:     true,
		Method:       method,
		CurrentStage: "Initializing",
		StartTime:    time.Now(),
	}
	return true
}

// UpdateProgress updates processing progress and stage
func (psr *ProcessingStateRepository) UpdateProgress(stage string, progress float64) {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	if !psr.state.IsActive {
		return
	}

	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	psr.state.CurrentStage = stage
	psr.state.Progress = progress

	if progress > 0 {
		elapsed := time.Since(psr.state.StartTime)
		psr.state.EstimatedDuration = time.Duration(float64(elapsed) / progress)
	}
}

// CompleteProcessing marks processing as complete
func (psr *ProcessingStateRepository) CompleteProcessing() {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	psr.state.IsActive = false
	psr.state.CurrentStage = "Complete"
	psr.state.Progress = 1.0
}

// FailProcessing records err and deactivates the run
func (psr *ProcessingStateRepository) FailProcessing(err error) {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	psr.state.IsActive = false
	psr.state.CurrentStage = "Failed"
	psr.state.Err = err
}

// CancelProcessing cancels ongoing processing
func (psr *ProcessingStateRepository) CancelProcessing() {
	psr.mu.Lock()
	defer psr.mu.Unlock()

	psr.state.Cancelled = true
	psr.state.IsActive = false
	psr.state.CurrentStage = "Cancelled"
}

// IsProcessing returns true if processing is currently active
func (psr *ProcessingStateRepository) IsProcessing() bool {
	psr.mu.RLock()
	defer psr.mu.RUnlock()
	return psr.state.IsActive
}

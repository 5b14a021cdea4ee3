// executor/status_manager.go

package executor

import (
	"sync"
	"time"
)

const (
	StatusQueued    = "Queued"
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
	StatusSkipped   = "Skipped"
)

type ExecutionStatus struct {
	Status    string
	StartTime time.Time
	EndTime   time.Time
}

// StatusManager tracks per-target execution state. The runner writes to it
// sequentially; the status UI reads concurrently, hence the mutex.
type StatusManager interface {
	SetStatus(name, status string)
	UpdateStatus(name, status string, startTime, endTime time.Time)
	Status(name string) ExecutionStatus
	Snapshot() map[string]ExecutionStatus
}

type statusManager struct {
	statusMap map[string]*ExecutionStatus
	mu        sync.Mutex
}

func NewStatusManager() StatusManager {
	return &statusManager{
		statusMap: make(map[string]*ExecutionStatus),
	}
}

func (sm *statusManager) SetStatus(name, status string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.statusMap[name] = &ExecutionStatus{Status: status}
}

func (sm *statusManager) UpdateStatus(name, status string, startTime, endTime time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, exists := sm.statusMap[name]; !exists {
		sm.statusMap[name] = &ExecutionStatus{}
	}
	sm.statusMap[name].Status = status
	if !startTime.IsZero() {
		sm.statusMap[name].StartTime = startTime
	}
	if !endTime.IsZero() {
		sm.statusMap[name].EndTime = endTime
	}
}

func (sm *statusManager) Status(name string) ExecutionStatus {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if status, exists := sm.statusMap[name]; exists {
		return *status
	}
	return ExecutionStatus{}
}

func (sm *statusManager) Snapshot() map[string]ExecutionStatus {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	snapshot := make(map[string]ExecutionStatus, len(sm.statusMap))
	for name, status := range sm.statusMap {
		snapshot[name] = *status
	}
	return snapshot
}

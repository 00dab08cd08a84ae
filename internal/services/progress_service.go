// internal/services/progress_service.go
package services

import (
	"fmt"
	"sync"
	"time"
)

// 任务状态
const (
	ProgressRunning   = "running"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	TaskID   string `json:"taskId"`
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Progress int    `json:"progress"` // 进度百分比 (0-100)
	Message  string `json:"message"`
	Status   string `json:"status"` // running, completed, failed
}

// ProgressTracker 跟踪长时间运行任务的进度
type ProgressTracker struct {
	TaskID     string
	Current    int
	Total      int
	Message    string
	Status     string
	StartTime  time.Time
	UpdateTime time.Time
	Done       chan struct{}

	subscribers map[chan ProgressUpdate]bool
	publish     func(ProgressUpdate)
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器，并把更新转发给全局订阅者
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex

	listeners   map[chan ProgressUpdate]bool
	listenersMu sync.Mutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers:  make(map[string]*ProgressTracker),
		listeners: make(map[chan ProgressUpdate]bool),
	}
}

// StartTracker 为任务创建跟踪器；同名任务已结束时替换，仍在运行时返回现有跟踪器
func (s *ProgressService) StartTracker(taskID string, total int) *ProgressTracker {
	s.mutex.Lock()
	tracker, exists := s.trackers[taskID]
	if exists && tracker.status() == ProgressRunning {
		s.mutex.Unlock()
		return tracker
	}

	now := time.Now()
	tracker = &ProgressTracker{
		TaskID:      taskID,
		Total:       total,
		Message:     "任务初始化中...",
		Status:      ProgressRunning,
		StartTime:   now,
		UpdateTime:  now,
		Done:        make(chan struct{}),
		subscribers: make(map[chan ProgressUpdate]bool),
		publish:     s.broadcast,
	}
	s.trackers[taskID] = tracker
	s.mutex.Unlock()

	s.broadcast(tracker.Snapshot())
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// Subscribe 订阅所有任务的进度更新
func (s *ProgressService) Subscribe() chan ProgressUpdate {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	ch := make(chan ProgressUpdate, 32)
	s.listeners[ch] = true
	return ch
}

// Unsubscribe 取消全局订阅
func (s *ProgressService) Unsubscribe(ch chan ProgressUpdate) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	if s.listeners[ch] {
		delete(s.listeners, ch)
		close(ch)
	}
}

func (s *ProgressService) broadcast(update ProgressUpdate) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	// 非阻塞发送，订阅者处理不过来时丢弃
	for ch := range s.listeners {
		select {
		case ch <- update:
		default:
		}
	}
}

// CleanupCompletedTasks 清理已完成的任务
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		isFinished := tracker.Status != ProgressRunning
		isOld := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if isFinished && isOld {
			delete(s.trackers, id)
		}
	}
}

func (t *ProgressTracker) status() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.Status
}

// Snapshot 当前进度
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.updateLocked()
}

func (t *ProgressTracker) updateLocked() ProgressUpdate {
	percent := 0
	if t.Total > 0 {
		percent = t.Current * 100 / t.Total
	}
	if t.Status == ProgressCompleted {
		percent = 100
	}
	return ProgressUpdate{
		TaskID:   t.TaskID,
		Current:  t.Current,
		Total:    t.Total,
		Progress: percent,
		Message:  t.Message,
		Status:   t.Status,
	}
}

// emitLocked 通知订阅者，调用方持有 t.mutex
func (t *ProgressTracker) emitLocked() ProgressUpdate {
	update := t.updateLocked()
	for subscriber := range t.subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
	return update
}

// UpdateProgress 把已处理数量设为 current，进度只增不减
func (t *ProgressTracker) UpdateProgress(current int, message string) {
	t.mutex.Lock()
	if current > t.Current {
		t.Current = current
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	update := t.emitLocked()
	t.mutex.Unlock()

	t.publish(update)
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(message string) {
	t.finish(ProgressCompleted, message, "任务已完成")
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(errorMsg string) {
	t.finish(ProgressFailed, fmt.Sprintf("任务失败: %s", errorMsg), "")
}

func (t *ProgressTracker) finish(status, message, fallback string) {
	t.mutex.Lock()
	if t.Status != ProgressRunning {
		t.mutex.Unlock()
		return
	}
	if message == "" {
		message = fallback
	}
	t.Message = message
	t.Status = status
	t.UpdateTime = time.Now()
	update := t.emitLocked()
	close(t.Done)
	t.mutex.Unlock()

	t.publish(update)
}

// Subscribe 订阅单个任务，立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.subscribers[subscriber] = true
	subscriber <- t.updateLocked()
	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.subscribers[subscriber] {
		delete(t.subscribers, subscriber)
		close(subscriber)
	}
}

package monitor

import "time"

type Slice string

const (
	SliceOnlineStatus Slice = "online_status"
	SliceSessions     Slice = "sessions"
	SliceActivityLogs Slice = "activity_logs"
	SliceWorkHours    Slice = "work_hours"
	SliceBranches     Slice = "branches"
)

// SliceStatus reports the freshness of one projection.
type SliceStatus struct {
	Loaded      bool
	LastSuccess time.Time
	Err         error
}

// slice holds one projection plus its fetch sequence. Results are applied only
// when they come from a fetch issued after the one currently applied.
type slice[T any] struct {
	value       T
	issued      uint64
	applied     uint64
	lastSuccess time.Time
	lastErr     error
}

func (s *slice[T]) begin() uint64 {
	s.issued++
	return s.issued
}

func (s *slice[T]) commit(seq uint64, value T, at time.Time) bool {
	if seq <= s.applied {
		return false
	}
	s.applied = seq
	s.value = value
	s.lastSuccess = at
	s.lastErr = nil
	return true
}

func (s *slice[T]) fail(seq uint64, err error) {
	if seq > s.applied {
		s.lastErr = err
	}
}

func (s *slice[T]) status() SliceStatus {
	return SliceStatus{Loaded: s.applied > 0, LastSuccess: s.lastSuccess, Err: s.lastErr}
}

package models

import "testing"

func TestExecutionStatusTerminal(t *testing.T) {
	terminal := map[ExecutionStatus]bool{
		ExecutionPending:   false,
		ExecutionRunning:   false,
		ExecutionCompleted: true,
		ExecutionFailed:    true,
		ExecutionCancelled: true,
		ExecutionTimeout:   true,
		ExecutionWarning:   true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}

func TestExecutionStatusCountsAsFailure(t *testing.T) {
	failures := map[ExecutionStatus]bool{
		ExecutionCompleted: false,
		ExecutionFailed:    true,
		ExecutionCancelled: false,
		ExecutionTimeout:   true,
		ExecutionWarning:   false,
	}
	for status, want := range failures {
		if status.CountsAsFailure() != want {
			t.Errorf("%s.CountsAsFailure() = %v, want %v", status, status.CountsAsFailure(), want)
		}
	}
}

func TestExecutionStatusHasMeasuredDuration(t *testing.T) {
	measured := map[ExecutionStatus]bool{
		ExecutionRunning:   false,
		ExecutionCompleted: true,
		ExecutionFailed:    true,
		ExecutionCancelled: false,
		ExecutionTimeout:   true,
		ExecutionWarning:   true,
	}
	for status, want := range measured {
		if status.HasMeasuredDuration() != want {
			t.Errorf("%s.HasMeasuredDuration() = %v, want %v", status, status.HasMeasuredDuration(), want)
		}
	}
}

func TestExecutionStatusIsValid(t *testing.T) {
	if !ExecutionPending.IsValid() || !ExecutionWarning.IsValid() {
		t.Error("defined statuses should be valid")
	}
	if ExecutionStatus(-1).IsValid() || ExecutionStatus(7).IsValid() {
		t.Error("out-of-range statuses should be invalid")
	}
}

func TestAddLogCounts(t *testing.T) {
	var e JobExecution
	e.AddLogCounts(map[LogLevel]int64{
		LevelInfo:     3,
		LevelError:    2,
		LevelCritical: 1,
	})
	if e.InfoLogCount != 3 || e.ErrorLogCount != 2 || e.CriticalLogCount != 1 {
		t.Errorf("per-level counts wrong: %+v", e)
	}
	if e.LogCount != 6 {
		t.Errorf("LogCount = %d, want 6", e.LogCount)
	}
}

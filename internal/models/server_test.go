package models

import (
	"testing"
	"time"
)

func TestClassifyServer(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	interval := 60

	heartbeatAt := func(age time.Duration) *time.Time {
		ts := now.Add(-age)
		return &ts
	}

	cases := []struct {
		name          string
		lastHeartbeat *time.Time
		interval      int
		want          ServerStatus
	}{
		{"never seen", nil, interval, ServerUnknown},
		{"just now", heartbeatAt(0), interval, ServerOnline},
		{"exactly two intervals", heartbeatAt(120 * time.Second), interval, ServerOnline},
		{"past two intervals", heartbeatAt(121 * time.Second), interval, ServerDegraded},
		{"exactly three intervals", heartbeatAt(180 * time.Second), interval, ServerDegraded},
		{"past three intervals", heartbeatAt(181 * time.Second), interval, ServerOffline},
		{"zero interval falls back to default", heartbeatAt(200 * time.Second), 0, ServerOffline},
		{"negative interval falls back to default", heartbeatAt(90 * time.Second), -5, ServerOnline},
		{"short custom interval", heartbeatAt(40 * time.Second), 10, ServerOffline},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyServer(tc.lastHeartbeat, tc.interval, now)
			if got != tc.want {
				t.Errorf("ClassifyServer() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestServerStatusString(t *testing.T) {
	if ServerOnline.String() != "Online" || ServerStatus(42).String() != "Unknown" {
		t.Error("unexpected status names")
	}
}

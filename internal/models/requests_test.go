package models

import (
	"testing"
	"time"
)

func TestLogSearchFilterNormalizeDefaults(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var f LogSearchFilter
	f.Normalize(now)

	if f.End == nil || !f.End.Equal(now) {
		t.Errorf("End = %v, want %v", f.End, now)
	}
	if f.Start == nil || !f.Start.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("Start = %v, want 24h before End", f.Start)
	}
	if f.Page != 1 || f.PageSize != 50 {
		t.Errorf("paging defaults wrong: page=%d pageSize=%d", f.Page, f.PageSize)
	}
	if f.SortColumn != SortByTimestamp || f.SortDirection != SortDesc {
		t.Errorf("sort defaults wrong: %s %s", f.SortColumn, f.SortDirection)
	}
}

func TestLogSearchFilterNormalizeKeepsExplicitValues(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(-time.Minute)

	f := LogSearchFilter{
		Start:         &start,
		End:           &end,
		Page:          3,
		PageSize:      200,
		SortColumn:    SortByLevel,
		SortDirection: SortAsc,
	}
	f.Normalize(now)

	if !f.Start.Equal(start) || !f.End.Equal(end) {
		t.Error("explicit window should be preserved")
	}
	if f.Page != 3 || f.PageSize != 200 {
		t.Error("explicit paging should be preserved")
	}
	if f.SortColumn != SortByLevel || f.SortDirection != SortAsc {
		t.Error("explicit sort should be preserved")
	}
}

func TestLogSearchFilterNormalizeCapsPageSize(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	f := LogSearchFilter{PageSize: 99999}
	f.Normalize(now)
	if f.PageSize != 1000 {
		t.Errorf("PageSize = %d, want cap 1000", f.PageSize)
	}

	f = LogSearchFilter{Page: -2, PageSize: -1}
	f.Normalize(now)
	if f.Page != 1 || f.PageSize != 50 {
		t.Errorf("negative paging should reset to defaults, got page=%d pageSize=%d", f.Page, f.PageSize)
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	cases := map[string]LogLevel{
		"trace":       LevelTrace,
		"Verbose":     LevelTrace,
		"debug":       LevelDebug,
		"INFO":        LevelInfo,
		"Information": LevelInfo,
		"warn":        LevelWarning,
		"Warning":     LevelWarning,
		"error":       LevelError,
		"fatal":       LevelCritical,
		"Critical":    LevelCritical,
	}
	for input, want := range cases {
		got, err := ParseLogLevel(input)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", input, got, want)
		}
	}

	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("unknown level name should error")
	}
}

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// crashDir receives fatal crash reports; set once from main.
var crashDir = "./logs"

// InstallCrashHandler records where crash reports go and makes sure the
// directory exists. Call before any goroutine is started.
func InstallCrashHandler(dir string) {
	if dir != "" {
		crashDir = dir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot create %s: %v\n", crashDir, err)
	}
}

// RecoverWithCrashFile is deferred at the top of main. A panic that reaches
// it is written to a report file and the process exits non-zero.
func RecoverWithCrashFile() {
	r := recover()
	if r == nil {
		return
	}
	WriteCrashFile(r, GetStackTrace())
	os.Exit(1)
}

// WriteCrashFile writes a timestamped crash report and returns its path.
// Falls back to stderr when the file cannot be written.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	path := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", now.Format("2006-01-02T15-04-05")))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var b strings.Builder
	fmt.Fprintf(&b, "VIGIL CRASH REPORT\n")
	fmt.Fprintf(&b, "time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "version: %s\n", GetFullVersion())
	fmt.Fprintf(&b, "goroutines: %d  cpus: %d  %s/%s\n", runtime.NumGoroutine(), runtime.NumCPU(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "heap: %d MB alloc, %d MB sys, %d gc cycles\n\n", memStats.Alloc>>20, memStats.Sys>>20, memStats.NumGC)
	fmt.Fprintf(&b, "panic: %v\n\n%s\n", panicVal, stackTrace)
	fmt.Fprintf(&b, "--- all goroutines ---\n%s\n", GetAllGoroutineStacks())

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot write %s: %v\n%s", path, err, b.String())
		return ""
	}

	fmt.Fprintf(os.Stderr, "\nFATAL: crash report saved to %s\npanic: %v\n", path, panicVal)
	return path
}

// GetStackTrace returns the current goroutine's stack.
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// GetAllGoroutineStacks dumps every goroutine, growing the buffer until the
// dump fits (capped at 64 MB).
func GetAllGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64<<20 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

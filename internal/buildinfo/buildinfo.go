// Package buildinfo exposes the version metadata stamped in at link
// time, plus the derived identifiers other packages print or send.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Overridden with -ldflags at release builds; the defaults mark a
// from-source development binary.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var started = time.Now()

// Uptime reports how long this process has been running.
func Uptime() time.Duration {
	return time.Since(started).Truncate(time.Second)
}

// UserAgent is the header value stamped on outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("reverie/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String renders the one-line banner logged at startup.
func String() string {
	return fmt.Sprintf("reverie %s (%s) built %s", Version, GitCommit, BuildTime)
}

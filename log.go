// Package-level structured logging for go-spsc.
//
// send, recv and try_recv never touch this: logging only happens at points
// already off the wait-free hot path (a detected programming error, a
// completed upgrade, a destructor invariant violation). The default logger
// is a nil *logiface.Logger, which every call site treats as "do nothing" —
// callers that want visibility call SetLogger once at start-up.

package spsc

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var globalLogger struct {
	sync.RWMutex
	log *logiface.Logger[*stumpy.Event]
}

// SetLogger installs the package-wide logger used for non-hot-path
// diagnostics (upgrades, drop-cleanliness violations, programming errors
// about to abort the process). Pass nil to disable logging again.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.log = l
}

func getLogger() *logiface.Logger[*stumpy.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.log
}

func logUpgrade(flavor, port string) {
	l := getLogger()
	if l == nil {
		return
	}
	l.Debug().Str("flavor", flavor).Str("port", port).Log("channel upgraded")
}

func logProtocolViolation(flavor string, err *ProtocolViolation) {
	l := getLogger()
	if l == nil {
		return
	}
	l.Crit().Str("flavor", flavor).Err(err).Log("protocol violation, aborting")
}

func logDropLeak(flavor, detail string) {
	l := getLogger()
	if l == nil {
		return
	}
	l.Warning().Str("flavor", flavor).Str("detail", detail).Log("drop cleanliness violation")
}

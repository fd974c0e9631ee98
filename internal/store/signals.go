package store

import (
	"os"
	"os/signal"
	"syscall"
)

// signalChan intercepts SIGINT/SIGTERM for the duration of a commit by
// registering our own channel via signal.Notify. Multiple channels can
// be registered for the same signal without canceling each other, so
// this never clobbers another package's own registration (the CLI's
// graceful-shutdown NotifyContext included), unlike signal.Ignore.
var signalChan = make(chan os.Signal, 2)

// deferSignals starts intercepting SIGINT/SIGTERM for the duration of a
// transaction commit: a signal arriving mid-commit must not tear a
// batch file and its checkpoint rename apart.
func deferSignals() {
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
}

// restoreSignals stops this package's interception of SIGINT/SIGTERM
// once a transaction commit completes. Unlike signal.Reset, Stop only
// removes our own channel's registration, leaving any other caller's
// signal.Notify intact.
func restoreSignals() {
	signal.Stop(signalChan)
}

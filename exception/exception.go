package exception

import (
	"os"
	"runtime/debug"

	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/monitoring"
)

// SafeGo runs fn in a goroutine, logging and counting a panic instead of
// crashing the node.
func SafeGo(name string, fn func()) {
	go func() {
		defer recoverAndLog(name)
		fn()
	}()
}

// SafeGoWithPanic is SafeGo for goroutines the node cannot live without: the
// process exits after the panic is logged.
func SafeGoWithPanic(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", "Panic in: ", name, " ", r, "\n", string(debug.Stack()))
				os.Exit(1)
			}
		}()
		fn()
	}()
}

func recoverAndLog(name string) {
	if r := recover(); r != nil {
		monitoring.IncreasePanicCount()
		logx.Error("PANIC", "Panic in: ", name, " ", r, "\n", string(debug.Stack()))
	}
}

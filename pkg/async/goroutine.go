// Package async provides supervised goroutine helpers for fire-and-forget
// side effects (last-used stamps, usage alerts). Use these instead of bare
// `go func()` to get panic recovery, timeouts, and error logging.
package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo executes fn in a goroutine with context cancellation, panic
// recovery, timeout enforcement, and error logging.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoDetached is SafeGo with the parent's cancellation stripped, for
// side effects that must outlive the request that spawned them. The
// timeout still bounds the work.
func SafeGoDetached(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	SafeGo(context.WithoutCancel(parentCtx), timeout, taskName, fn)
}

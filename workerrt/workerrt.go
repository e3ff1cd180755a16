// Package workerrt defines the worker-runtime adapter contract: an external
// collaborator that executes a named (module, method) pair in an isolated
// worker and returns either a result or a structured error. The connector
// never executes handler code itself — it only calls Runtime.Exec.
package workerrt

import "context"

// Runtime executes a registered (module, method) pair with the given
// arguments. Implementations must never panic across this boundary — any
// panic or returned error is reported as an *errs.WorkerException by the
// caller (see workerrt/pool for the in-process adapter that does this).
type Runtime interface {
	Exec(ctx context.Context, module, method string, args ...any) (any, error)
}

package main

import (
	"context"
	"fmt"

	"github.com/taskengine/backgroundtask/registry"
	"github.com/taskengine/backgroundtask/workerrt/pool"
)

// registerDemoHandlers binds a single "demo.echo" task type to a handler
// that logs its payload and succeeds, the same role the teacher's
// worker.MockShellHandler plays for local development and smoke-testing
// before a real out-of-process worker runtime is wired in.
func registerDemoHandlers(runtime *pool.Pool, reg *registry.Registry) {
	runtime.Register("demo", "echo", func(_ context.Context, args ...any) (any, error) {
		var payload []byte
		if len(args) > 1 {
			if b, ok := args[1].([]byte); ok {
				payload = b
			}
		}
		if len(payload) > 0 {
			fmt.Printf("demo.echo: %s\n", payload)
		}
		return map[string]any{"echoed": len(payload)}, nil
	})
	reg.Register("demo.echo", "demo", "echo")
}

package main

import (
	"context"
	"fmt"

	"github.com/taskengine/backgroundtask/registry"
	"github.com/taskengine/backgroundtask/workerrt/pool"
)

// registerDemoHandlers binds the same "demo.echo" task type the API
// server's connector dispatches to. This binary wires no connector and
// exposes no invocation endpoint, so the handler is only registered
// locally in this process's pool.
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

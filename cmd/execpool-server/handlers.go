package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/NageshMashette/execpool/internal/pool"
)

// registerDemoHandlers registers a small set of task handlers useful
// for exercising every corner of the pool: a no-op round trip, a
// sleeper for exercising timeouts, basic arithmetic, a deliberate
// failure, and a deliberate panic. Registration must happen
// unconditionally before MaybeRunWorker, since the re-exec'd child only
// ever runs this same main().
func registerDemoHandlers() {
	pool.RegisterHandler("echo", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"args": args, "kwargs": kwargs}, nil
	})

	pool.RegisterHandler("sleep", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		seconds := 1.0
		if len(args) > 0 {
			if f, ok := args[0].(float64); ok {
				seconds = f
			}
		}
		time.Sleep(time.Duration(seconds * float64(time.Second)))
		return "awake", nil
	})

	pool.RegisterHandler("compute", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		sum := 0.0
		for _, a := range args {
			f, ok := a.(float64)
			if !ok {
				return nil, fmt.Errorf("compute: non-numeric argument %v", a)
			}
			sum += f
		}
		return sum, nil
	})

	pool.RegisterHandler("fail", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, errors.New("task deliberately failed")
	})

	pool.RegisterHandler("panic", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		panic("task deliberately panicked")
	})
}

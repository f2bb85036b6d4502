package pool

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookupHandler(t *testing.T) {
	RegisterHandler("test-echo", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return args, nil
	})

	fn, ok := lookupHandler("test-echo")
	require.True(t, ok)
	require.NotNil(t, fn)

	_, ok = lookupHandler("does-not-exist")
	assert.False(t, ok)
}

func TestExecuteWithCapture_Success(t *testing.T) {
	RegisterHandler("test-success", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		fmt.Println("hello from handler")
		return "result-value", nil
	})

	logs, value, err := executeWithCapture(&taskWire{ID: "t1", Type: "test-success"})
	require.NoError(t, err)
	assert.Equal(t, "result-value", value)
	assert.Contains(t, logs, "hello from handler")
}

func TestExecuteWithCapture_HandlerError(t *testing.T) {
	RegisterHandler("test-error", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, errors.New("handler failed deliberately")
	})

	_, _, err := executeWithCapture(&taskWire{ID: "t1", Type: "test-error"})
	require.Error(t, err)
	assert.Equal(t, "handler failed deliberately", err.Error())
}

func TestExecuteWithCapture_UnregisteredHandler(t *testing.T) {
	_, _, err := executeWithCapture(&taskWire{ID: "t1", Type: "no-such-handler-type"})
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestExecuteWithCapture_RecoversPanic(t *testing.T) {
	RegisterHandler("test-panic", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		panic("boom")
	})

	_, _, err := executeWithCapture(&taskWire{ID: "t1", Type: "test-panic"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))
	assert.True(t, strings.Contains(err.Error(), "test-panic"))
}

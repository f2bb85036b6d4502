package pool

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf)
	r := newFrameReader(&buf)

	task := &taskWire{ID: "t1", Type: "echo", Args: []interface{}{"hi"}}
	require.NoError(t, w.Write(msgTask, taskPayload{Task: task}))

	env, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, msgTask, env.Kind)

	var got taskPayload
	require.NoError(t, decodePayload(env.Payload, &got))
	assert.Equal(t, "t1", got.Task.ID)
	assert.Equal(t, "echo", got.Task.Type)
	assert.Equal(t, []interface{}{"hi"}, got.Task.Args)
}

func TestFrameWriterReader_MultipleFramesPreserveOrder(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf)
	r := newFrameReader(&buf)

	require.NoError(t, w.Write(msgStarted, startedPayload{TaskID: "a"}))
	require.NoError(t, w.Write(msgResult, resultPayload{TaskID: "a", Value: 1, Logs: "x"}))
	require.NoError(t, w.Write(msgStop, struct{}{}))

	env1, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, msgStarted, env1.Kind)

	env2, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, msgResult, env2.Kind)
	var result resultPayload
	require.NoError(t, decodePayload(env2.Payload, &result))
	assert.Equal(t, "a", result.TaskID)
	assert.InDelta(t, 1, result.Value, 0.0001)

	env3, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, msgStop, env3.Kind)
}

func TestFrameReader_EOFOnClosedPipe(t *testing.T) {
	pr, pw := io.Pipe()
	r := newFrameReader(pr)

	go pw.Close()

	_, err := r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameWriter_ConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf)
	r := newFrameReader(&buf)

	const n = 20
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			errCh <- w.Write(msgStarted, startedPayload{TaskID: "x"})
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errCh)
	}

	for i := 0; i < n; i++ {
		env, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, msgStarted, env.Kind)
	}
}

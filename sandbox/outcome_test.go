package sandbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, classifyStatus(processResult{ExitCode: 0}))
	assert.Equal(t, StatusError, classifyStatus(processResult{ExitCode: 1}))
	assert.Equal(t, StatusError, classifyStatus(processResult{ExitCode: -1}))
	assert.Equal(t, StatusTimeout, classifyStatus(processResult{ExitCode: -1, TimedOut: true}))
}

func TestClassify(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		resp := Classify(Outcome{
			Stdout:  []byte("hi\n"),
			Elapsed: 42 * time.Millisecond,
			Status:  StatusSuccess,
		})
		assert.Equal(t, Response{Stdout: "hi\n", Stderr: "", Time: 42, Status: StatusSuccess}, resp)
	})

	t.Run("ErrorKeepsStderr", func(t *testing.T) {
		resp := Classify(Outcome{Stderr: []byte("Traceback"), Status: StatusError, ExitCode: 1})
		assert.Equal(t, "Traceback", resp.Stderr)
		assert.Equal(t, StatusError, resp.Status)
	})

	t.Run("TimeoutReplacesStderr", func(t *testing.T) {
		resp := Classify(Outcome{
			Stdout: []byte("partial"),
			Stderr: []byte("noise"),
			Status: StatusTimeout,
			Limit:  10 * time.Second,
		})
		assert.Equal(t, "partial", resp.Stdout)
		assert.Equal(t, "Execution timeout (10s limit)", resp.Stderr)
	})

	t.Run("WireShape", func(t *testing.T) {
		data, err := json.Marshal(Classify(Outcome{Stdout: []byte("x"), Elapsed: time.Second, Status: StatusSuccess}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"stdout":"x","stderr":"","time":1000,"status":"success"}`, string(data))
	})
}

func TestTimeoutMessage(t *testing.T) {
	assert.Equal(t, "Execution timeout (10s limit)", TimeoutMessage(10*time.Second))
	assert.Equal(t, "Execution timeout (200ms limit)", TimeoutMessage(200*time.Millisecond))
}

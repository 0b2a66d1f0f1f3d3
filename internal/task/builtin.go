package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/golem-api/internal/domain"
)

// EchoJobType is the built-in diagnostic job type name.
const EchoJobType = "diagnostic.echo"

// echoPayloadSchema validates diagnostic.echo submissions: an optional
// message plus an optional artificial delay, capped so a diagnostic run
// cannot hog a worker slot.
var echoPayloadSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"message": {"type": "string", "maxLength": 1024},
		"sleep_ms": {"type": "integer", "minimum": 0, "maximum": 60000},
		"fail_code": {"type": "string"}
	},
	"additionalProperties": false
}`)

// EchoDefinition returns the built-in diagnostic job type. It walks
// through a three-step progress sequence, optionally sleeping between
// steps, and echoes its message back as the result. Setting fail_code
// makes the attempt fail with that error code, which exercises the
// retry policy end to end. Useful for verifying a deployment without
// driving a real portal.
func EchoDefinition() Definition {
	return Definition{
		Type:              EchoJobType,
		Handler:           echoHandler,
		PayloadSchema:     echoPayloadSchema,
		ExecutionTimeout:  2 * time.Minute,
		EstimatedDuration: 5 * time.Second,
	}
}

func echoHandler(ctx context.Context, exec *Execution) (json.RawMessage, error) {
	var payload struct {
		Message  string `json:"message"`
		SleepMS  int    `json:"sleep_ms"`
		FailCode string `json:"fail_code"`
	}
	if err := json.Unmarshal(exec.Payload, &payload); err != nil {
		return nil, WrapError(domain.ErrorCodeInvalidInput, "malformed echo payload", err)
	}

	steps := []struct {
		percent int
		message string
	}{
		{10, "starting"},
		{55, "echoing"},
		{100, "done"},
	}

	pause := time.Duration(payload.SleepMS) * time.Millisecond / time.Duration(len(steps))

	for i, step := range steps {
		if err := exec.ReportProgress(ctx, domain.Progress{
			Percent:     step.percent,
			Message:     step.message,
			CurrentStep: i + 1,
			TotalSteps:  len(steps),
		}); err != nil {
			return nil, WrapError(domain.ErrorCodeUnknown, "progress write rejected", err)
		}

		if pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pause):
			}
		}
	}

	if payload.FailCode != "" {
		return nil, Errorf(payload.FailCode, "echo failed on request with code %s", payload.FailCode)
	}

	result, err := json.Marshal(map[string]any{
		"message": payload.Message,
		"attempt": exec.Attempt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal echo result: %w", err)
	}
	return result, nil
}

package errors

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler turns a failed job into either a fail-job command (the
// broker retries it) or a thrown BPMN error (the process model decides).
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// remainingRetries caps the retry budget at what the broker still has for
// the job. A zero result means the error should be thrown instead.
func remainingRetries(bpmnErr *BPMNError, jobRetries int32) int32 {
	if bpmnErr.Retries <= 0 || jobRetries <= 1 {
		return 0
	}
	budget := int32(bpmnErr.Retries)
	if left := jobRetries - 1; left < budget {
		budget = left
	}
	return budget
}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) *BPMNError {
	stdErr := AsStandardError(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	retries := remainingRetries(bpmnErr, job.Retries)

	fields := map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"processInstanceKey": job.ProcessInstanceKey,
		"errorCode":          string(stdErr.Code),
		"bpmnErrorCode":      bpmnErr.Code,
		"errorCategory":      GetErrorCategory(stdErr.Code),
		"details":            stdErr.Details,
		"retries":            retries,
	}
	h.logger.Error("Job failed", fields)

	vars := bpmnErr.ToErrorVariables()
	if retries > 0 {
		cmd := client.NewFailJobCommand().JobKey(job.Key).Retries(retries).ErrorMessage(bpmnErr.Message)
		if withVars, err := cmd.VariablesFromMap(vars); err == nil {
			_, err = withVars.Send(ctx)
			h.reportSend(job, "fail", err)
		} else {
			_, err = cmd.Send(ctx)
			h.reportSend(job, "fail", err)
		}
		return bpmnErr
	}

	cmd := client.NewThrowErrorCommand().JobKey(job.Key).ErrorCode(bpmnErr.Code).ErrorMessage(bpmnErr.Message)
	if withVars, err := cmd.VariablesFromMap(vars); err == nil {
		_, err = withVars.Send(ctx)
		h.reportSend(job, "throw", err)
	} else {
		_, err = cmd.Send(ctx)
		h.reportSend(job, "throw", err)
	}
	return bpmnErr
}

func (h *ErrorHandler) reportSend(job entities.Job, command string, err error) {
	if err == nil {
		return
	}
	h.logger.Error("Failed to send job command", map[string]interface{}{
		"jobKey":  job.Key,
		"command": command,
		"error":   err.Error(),
	})
}


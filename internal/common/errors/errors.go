// Package errors provides standardized error handling for the ingest pipeline,
// its HTTP surface and BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Caller / request errors
const (
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeInvalidSourceURL ErrorCode = "INVALID_SOURCE_URL"
	ErrCodePayloadTooLarge  ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
)

// Archive / processing errors
const (
	ErrCodeDownloadFailed      ErrorCode = "DOWNLOAD_FAILED"
	ErrCodeCorruptArchive      ErrorCode = "CORRUPT_ARCHIVE"
	ErrCodeMissingEntryPoint   ErrorCode = "MISSING_ENTRY_POINT"
	ErrCodeDecodeFailed        ErrorCode = "DECODE_FAILED"
	ErrCodeStorageUploadFailed ErrorCode = "STORAGE_UPLOAD_FAILED"
	ErrCodePersistenceFailed   ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Infrastructure errors
const (
	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed          ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout                  ErrorCode = "QUERY_TIMEOUT"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeIndexingFailed                ErrorCode = "INDEXING_FAILED"
	ErrCodeNotificationSendFailed        ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeExternalService               ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                       ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound              ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule                  ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthentication                ErrorCode = "AUTHENTICATION_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedError is returned when the bearer credential is absent or invalid.
func NewUnauthorizedError(details string) *StandardError {
	return newError(ErrCodeUnauthorized, "Unauthorized", details, false)
}

// NewForbiddenError is returned when the caller lacks the administrative role.
func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Forbidden: Admin access required", details, false)
}

// NewInvalidInputError creates a non-retryable request error.
func NewInvalidInputError(message, details string) *StandardError {
	return newError(ErrCodeInvalidInput, message, details, false)
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found", fmt.Sprintf("templateId: %s", templateID), false)
}

// NewInvalidSourceURLError rejects archive URLs outside the templates bucket.
func NewInvalidSourceURLError(sourceURL string) *StandardError {
	return newError(ErrCodeInvalidSourceURL, "Invalid ZIP URL - must be from templates bucket", fmt.Sprintf("zipUrl: %s", sourceURL), false)
}

// NewPayloadTooLargeError rejects archives above the configured ceiling.
func NewPayloadTooLargeError(limit int64) *StandardError {
	return newError(ErrCodePayloadTooLarge,
		fmt.Sprintf("ZIP file too large (max %dMB)", limit/(1024*1024)),
		fmt.Sprintf("limitBytes: %d", limit), false)
}

// NewValidationFailedError creates a non-retryable schema validation error.
func NewValidationFailedError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false)
}

// NewDownloadFailedError creates a retryable archive fetch error.
func NewDownloadFailedError(err error) *StandardError {
	e := newError(ErrCodeDownloadFailed, fmt.Sprintf("Failed to download ZIP: %s", err.Error()), err.Error(), true)
	e.Cause = err
	return e
}

// NewCorruptArchiveError is returned when the payload is not a ZIP container.
func NewCorruptArchiveError(err error) *StandardError {
	e := newError(ErrCodeCorruptArchive, "Invalid or corrupt ZIP archive", err.Error(), false)
	e.Cause = err
	return e
}

// NewMissingEntryPointError is returned when no index.html can be located.
func NewMissingEntryPointError() *StandardError {
	return newError(ErrCodeMissingEntryPoint, "No index.html file found in ZIP", "", false)
}

// NewDecodeFailedError reports an entry whose text could not be decoded.
func NewDecodeFailedError(path string, err error) *StandardError {
	e := newError(ErrCodeDecodeFailed, "Failed to decode archive entry", fmt.Sprintf("path: %s, error: %s", path, err.Error()), false)
	e.Cause = err
	return e
}

// NewStorageUploadFailedError reports a single failed object write.
func NewStorageUploadFailedError(key string, err error) *StandardError {
	e := newError(ErrCodeStorageUploadFailed, "Asset upload failed", fmt.Sprintf("key: %s, error: %s", key, err.Error()), true)
	e.Cause = err
	return e
}

// NewPersistenceFailedError creates a retryable template update error.
func NewPersistenceFailedError(err error) *StandardError {
	e := newError(ErrCodePersistenceFailed, "Failed to persist processed template", err.Error(), true)
	e.Cause = err
	return e
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	msg := "Unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	e := newError(ErrCodeInternal, msg, msg, false)
	e.Cause = err
	return e
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	e := newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
	e.Cause = err
	return e
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	e := newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true)
	e.Cause = err
	return e
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(queryType string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout", fmt.Sprintf("queryType: %s", queryType), true)
}

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	e := newError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", err.Error(), true)
	e.Cause = err
	return e
}

func NewIndexingFailedError(index string, err error) *StandardError {
	e := newError(ErrCodeIndexingFailed, "Catalog indexing failed", fmt.Sprintf("index: %s, error: %s", index, err.Error()), true)
	e.Cause = err
	return e
}

func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	e := newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()), true)
	e.Cause = err
	return e
}

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false)
}

func NewExternalServiceError(service string, err error) *StandardError {
	e := newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true)
	e.Cause = err
	return e
}

func NewTimeoutError(service string, err error) *StandardError {
	e := newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
	e.Cause = err
	return e
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false)
}

// ==========================
// 4. Inspection Helpers
// ==========================

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// HTTPStatus maps an error code to the status returned by the HTTP surface.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthorized, ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeInvalidInput, ErrCodeInvalidSourceURL, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeTemplateNotFound, ErrCodeResourceNotFound:
		return http.StatusNotFound
	case ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeCorruptArchive, ErrCodeMissingEntryPoint, ErrCodeDecodeFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeDownloadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. BPMN Mapping
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeUnauthorized:                  "UNAUTHORIZED",
	ErrCodeForbidden:                     "FORBIDDEN",
	ErrCodeInvalidInput:                  "INVALID_INPUT",
	ErrCodeTemplateNotFound:              "TEMPLATE_NOT_FOUND",
	ErrCodeInvalidSourceURL:              "INVALID_SOURCE_URL",
	ErrCodePayloadTooLarge:               "PAYLOAD_TOO_LARGE",
	ErrCodeValidationFailed:              "VALIDATION_FAILED",
	ErrCodeDownloadFailed:                "DOWNLOAD_FAILED",
	ErrCodeCorruptArchive:                "CORRUPT_ARCHIVE",
	ErrCodeMissingEntryPoint:             "MISSING_ENTRY_POINT",
	ErrCodePersistenceFailed:             "PERSISTENCE_FAILED",
	ErrCodeDatabaseConnectionFailed:      "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryExecutionFailed:          "QUERY_EXECUTION_FAILED",
	ErrCodeQueryTimeout:                  "QUERY_TIMEOUT",
	ErrCodeElasticsearchConnectionFailed: "ELASTICSEARCH_CONNECTION_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDownloadFailed,
		ErrCodePersistenceFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeTimeout:
		return 2

	default:
		return 0 // Business errors: no retry
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UNAUTHORIZED") || strings.Contains(codeStr, "FORBIDDEN") || strings.Contains(codeStr, "AUTHENTICATION"):
		return "AUTH"
	case strings.Contains(codeStr, "ARCHIVE") || strings.Contains(codeStr, "ENTRY_POINT") || strings.Contains(codeStr, "DECODE"):
		return "ARCHIVE"
	case strings.Contains(codeStr, "DOWNLOAD") || strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "PAYLOAD"):
		return "TRANSFER"
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "PERSISTENCE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/smithy-go"
)

// Failure kinds carried by *Error. Match them with errors.Is.
var (
	ErrNotFound         = errors.New("object not found")           // NoSuchKey, NoSuchBucket, ENOENT
	ErrAccessDenied     = errors.New("object access denied")       // AccessDenied, 403
	ErrPermissionDenied = errors.New("local permission denied")    // EACCES on the fs backend
	ErrAuth             = errors.New("store credentials rejected") // expired or missing credentials
	ErrDiskFull         = errors.New("store out of space")         // ENOSPC, quota
	ErrThrottled        = errors.New("store request throttled")    // SlowDown, 429
	ErrTimeout          = errors.New("store request timed out")
	ErrNetwork          = errors.New("store unreachable")
	ErrUnclassified     = errors.New("store error")
)

// Error is a classified fetch or put failure on one object. The cause
// stays reachable through Unwrap.
type Error struct {
	Kind   error
	Op     string // "fetch" or "put"
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s/%s: %v: %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the failure kind.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Transient reports whether a later attempt may succeed without operator
// action. Missing objects and credential/permission problems are permanent.
func (e *Error) Transient() bool {
	switch e.Kind {
	case ErrNotFound, ErrPermissionDenied, ErrAccessDenied, ErrAuth:
		return false
	default:
		return true
	}
}

// IsTransient reports whether err is a transient store error.
// Errors that are not *Error are treated as transient.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient()
	}
	return err != nil
}

// wrap classifies err and returns it as *Error. Returns nil if err is nil.
func wrap(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: classifyError(err), Op: op, Bucket: bucket, Key: key, Err: err}
}

// classifyError determines the sentinel kind for err. AWS API error codes
// are checked first, then well-known error types, then message patterns.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind := classifyCode(apiErr.ErrorCode()); kind != nil {
			return kind
		}
	}

	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if errors.Is(err, os.ErrPermission) {
		return ErrPermissionDenied
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "accessdenied", "forbidden", "403"):
		return ErrAccessDenied
	case containsAny(msg, "permission denied", "eacces"):
		return ErrPermissionDenied
	case containsAny(msg, "no such file", "does not exist", "not found", "enoent", "404", "nosuchkey", "nosuchbucket"):
		return ErrNotFound
	case containsAny(msg, "no space left", "disk full", "enospc", "quota exceeded"):
		return ErrDiskFull
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"):
		return ErrThrottled
	case containsAny(msg, "nocredentialproviders", "credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken", "401", "unauthorized"):
		return ErrAuth
	case containsAny(msg, "connection refused", "no route to host", "network unreachable",
		"dns", "dial tcp", "connection reset"):
		return ErrNetwork
	default:
		return ErrUnclassified
	}
}

// classifyCode maps S3 API error codes to kinds. Returns nil for unknown codes.
func classifyCode(code string) error {
	switch code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return ErrNotFound
	case "AccessDenied", "Forbidden", "AllAccessDisabled":
		return ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return ErrAuth
	case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
		return ErrThrottled
	case "RequestTimeout", "RequestTimeoutException":
		return ErrTimeout
	default:
		return nil
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package adapter

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

var throttleCodes = map[string]bool{
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
	"SlowDown":                 true,
	"RequestThrottled":         true,
}

var badStateCodes = map[string]bool{
	"IncorrectInstanceState":              true,
	"IncorrectState":                      true,
	"InvalidParameterCombination":         true,
	"InvalidDBInstanceState":              true,
	"InvalidDBInstanceStateFault":         true,
	"ResourceConflictException":           true,
	"VolumeModificationSizeLimitExceeded": true,
	"UnsupportedOperation":                true,
}

var accessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
}

// classifyAWSError maps a provider error to a classified error. Unrecognized
// API errors are permanent; non-API failures (network, timeouts) are
// transient and therefore retryable.
func classifyAWSError(op string, err error) *optimizer.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return optimizer.NewTransientError(op+" timed out", err).WithCode(optimizer.ErrCodeTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return optimizer.NewTransientError(op+" cancelled", err)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return optimizer.NewTransientError(op+" failed", err)
	}

	code := apiErr.ErrorCode()
	switch {
	case throttleCodes[code]:
		return optimizer.NewThrottledError(op+" throttled", err).WithCode(optimizer.ErrCodeThrottled)
	case isNotFoundCode(code):
		return optimizer.NewPermanentError(op+" target not found", err).WithCode(optimizer.ErrCodeNotFound)
	case badStateCodes[code]:
		return optimizer.NewPreconditionError(op+" rejected by provider", err).WithCode(optimizer.ErrCodeBadState)
	case accessDeniedCodes[code]:
		return optimizer.NewPermanentError(op+" not permitted", err).WithCode(optimizer.ErrCodePermissionDenied)
	case apiErr.ErrorFault() == smithy.FaultServer:
		return optimizer.NewTransientError(op+" failed at provider", err).WithCode(code)
	default:
		return optimizer.NewPermanentError(op+" failed", err).WithCode(code)
	}
}

func isNotFoundCode(code string) bool {
	switch code {
	case "NoSuchBucket", "NotFound", "ResourceNotFoundException", "DBInstanceNotFound", "DBInstanceNotFoundFault":
		return true
	}
	return strings.Contains(code, ".NotFound") || strings.HasSuffix(code, "NotFound")
}

// isAPIErrorCode reports whether err is an API error with the given code.
// Used by Describe implementations to treat clean not-found responses as
// Exists=false rather than failures.
func isAPIErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	got := apiErr.ErrorCode()
	for _, c := range codes {
		if got == c {
			return true
		}
	}
	return false
}

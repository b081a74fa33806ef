package adapter

import (
	"errors"
	"net"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

func TestRegistry(t *testing.T) {
	r := NewRegistryFromClients(&Clients{
		EC2:    &mockEC2{},
		S3:     &mockS3{},
		Lambda: &mockLambda{},
		RDS:    &mockRDS{},
	}, zerolog.Nop())

	for _, kind := range optimizer.Kinds() {
		a, err := r.ForKind(kind)
		if err != nil {
			t.Errorf("ForKind(%s) failed: %v", kind, err)
			continue
		}
		if a.Kind() != kind {
			t.Errorf("Adapter for %s reports kind %s", kind, a.Kind())
		}
	}

	if got := len(r.Kinds()); got != len(optimizer.Kinds()) {
		t.Errorf("Expected all kinds registered, got %d", got)
	}

	_, err := r.ForKind(optimizer.ResourceKind("cluster"))
	if err == nil {
		t.Fatal("Unknown kind should fail")
	}
	var cerr *optimizer.Error
	if !errors.As(err, &cerr) || cerr.Code != optimizer.ErrCodeUnknownKind {
		t.Errorf("Expected %s code, got %v", optimizer.ErrCodeUnknownKind, err)
	}
}

func TestClassifyAWSError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class optimizer.ErrorClass
		code  string
	}{
		{
			name:  "throttling",
			err:   &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			class: optimizer.ErrorClassThrottled,
			code:  optimizer.ErrCodeThrottled,
		},
		{
			name:  "request limit",
			err:   &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "rate exceeded"},
			class: optimizer.ErrorClassThrottled,
			code:  optimizer.ErrCodeThrottled,
		},
		{
			name:  "instance not found",
			err:   &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "missing"},
			class: optimizer.ErrorClassPermanent,
			code:  optimizer.ErrCodeNotFound,
		},
		{
			name:  "db not found",
			err:   &smithy.GenericAPIError{Code: "DBInstanceNotFound", Message: "missing"},
			class: optimizer.ErrorClassPermanent,
			code:  optimizer.ErrCodeNotFound,
		},
		{
			name:  "incorrect state",
			err:   &smithy.GenericAPIError{Code: "IncorrectInstanceState", Message: "not stopped"},
			class: optimizer.ErrorClassPrecondition,
			code:  optimizer.ErrCodeBadState,
		},
		{
			name:  "access denied",
			err:   &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "denied"},
			class: optimizer.ErrorClassPermanent,
			code:  optimizer.ErrCodePermissionDenied,
		},
		{
			name:  "server fault",
			err:   &smithy.GenericAPIError{Code: "InternalError", Message: "oops", Fault: smithy.FaultServer},
			class: optimizer.ErrorClassTransient,
		},
		{
			name:  "network error",
			err:   &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			class: optimizer.ErrorClassTransient,
		},
		{
			name:  "unknown api error",
			err:   &smithy.GenericAPIError{Code: "ValidationError", Message: "bad input"},
			class: optimizer.ErrorClassPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyAWSError("test op", tt.err)
			if got.Class != tt.class {
				t.Errorf("Class = %s, want %s", got.Class, tt.class)
			}
			if tt.code != "" && got.Code != tt.code {
				t.Errorf("Code = %s, want %s", got.Code, tt.code)
			}
			if !errors.Is(got.Unwrap(), tt.err) && got.Unwrap() != tt.err {
				t.Error("Classified error should wrap the original")
			}
		})
	}
}

func TestConfigMatches(t *testing.T) {
	observed := map[string]string{"instance_type": "t3.medium", "state": "running"}

	if !configMatches(observed, map[string]string{"instance_type": "t3.medium"}, computeKeys) {
		t.Error("Matching key should pass")
	}
	if configMatches(observed, map[string]string{"instance_type": "t3.large"}, computeKeys) {
		t.Error("Mismatched key should fail")
	}
	// Keys outside the adapter's key set are ignored.
	if !configMatches(observed, map[string]string{"unrelated": "x"}, computeKeys) {
		t.Error("Unknown keys should be ignored")
	}
}

package server

import (
	"fmt"
	"strings"
)

const (
	maxTestCases      = 100
	minSourceBytes    = 1
	maxSourceBytes    = 100000
	maxTestCaseBytes  = 10000
	minTimeoutMS      = 1
	maxTimeoutMS      = 60000
	defaultTimeoutMS  = 5000
	defaultTestWeight = 10
)

// validationError carries the reason tag surfaced in a 400 response, per
// §4.F's "validation failures: 400 with a reason tag".
type validationError struct {
	reason  string
	message string
}

func (e *validationError) Error() string { return e.message }

func newValidationError(reason, message string) *validationError {
	return &validationError{reason: reason, message: message}
}

// validateSubmission applies §4.F's submission checks. Returns a
// *validationError identifying which rule failed.
func validateSubmission(req *submitRequest) error {
	if strings.TrimSpace(req.SourceCode) == "" {
		return newValidationError("empty_source", "source_code must not be blank")
	}
	if len(req.SourceCode) < minSourceBytes || len(req.SourceCode) > maxSourceBytes {
		return newValidationError("source_size", fmt.Sprintf("source_code must be between %d and %d bytes", minSourceBytes, maxSourceBytes))
	}

	if len(req.TestCases) == 0 {
		return newValidationError("no_test_cases", "at least one test case is required")
	}
	if len(req.TestCases) > maxTestCases {
		return newValidationError("too_many_test_cases", fmt.Sprintf("at most %d test cases are allowed", maxTestCases))
	}
	for i, tc := range req.TestCases {
		if len(tc.Input) > maxTestCaseBytes {
			return newValidationError("test_case_too_large", fmt.Sprintf("test case %d input exceeds %d bytes", i, maxTestCaseBytes))
		}
		if len(tc.ExpectedOutput) > maxTestCaseBytes {
			return newValidationError("test_case_too_large", fmt.Sprintf("test case %d expected_output exceeds %d bytes", i, maxTestCaseBytes))
		}
	}

	if req.TimeoutMS != nil && (*req.TimeoutMS < minTimeoutMS || *req.TimeoutMS > maxTimeoutMS) {
		return newValidationError("invalid_timeout", fmt.Sprintf("timeout_ms must be between %d and %d", minTimeoutMS, maxTimeoutMS))
	}

	return nil
}

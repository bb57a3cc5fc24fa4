package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When users encounter errors, they can quote the code to support
// staff for faster diagnosis.
//
// # Batch Errors (BATCH001-BATCH099)
//
//	BATCH001 - Empty batch: No document URLs were submitted
//	           Action: Provide at least one document URL
//	           Match: ErrEmptyBatch
//
//	BATCH002 - Batch too large: More documents than the per-run limit
//	           Action: Split the documents into smaller batches
//	           Match: ErrBatchTooLarge
//
//	BATCH003 - Batch cancelled: The run was cancelled before it finished
//	           Action: Start a new validation when ready
//	           Match: ErrCancelledBatch
//
// # Extraction Errors (EXT001-EXT099)
//
//	EXT001 - Document not found (ExtractionError kind notFound)
//	EXT002 - Document unreadable (ExtractionError kind unreadable)
//	EXT003 - Document timeout (ExtractionError kind timeout)
//	EXT004 - Document unreachable (ExtractionError kind network)
//
// # Registry Errors (REG001-REG099)
//
//	REG001 - Company not found in registry (RegistryError kind notFound)
//	REG002 - Registry timeout (RegistryError kind timeout)
//	REG003 - Registry unreachable (RegistryError kind network)
//
// # Reference Errors (REF001-REF099) and Run Errors (RUN001-RUN099)
//
// These come from the spreadsheet loader and the session layer, which live
// outside this package, so they are matched by message pattern.
//
// # Pattern Matching
//
// Typed and sentinel errors are resolved first with errors.Is/errors.As.
// Otherwise patterns are matched case-insensitively using strings.Contains;
// the first matching pattern wins, so specific patterns come first.
//
// # Request Errors (REQ001)
//
//	REQ001 - Malformed request body or missing field
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original
// technical error.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgEmptyBatch = UserMessage{
		Message: "No document URLs were submitted",
		Action:  "Provide at least one document URL",
		Code:    "BATCH001",
	}
	msgBatchTooLarge = UserMessage{
		Message: "Too many documents for a single validation run",
		Action:  "Split the documents into smaller batches",
		Code:    "BATCH002",
	}
	msgCancelled = UserMessage{
		Message: "Validation was cancelled",
		Action:  "Start a new validation when ready",
		Code:    "BATCH003",
	}
	msgUnknown = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
)

var extractionMessages = map[FailureKind]UserMessage{
	KindNotFound: {
		Message: "The document could not be found",
		Action:  "Check that the document URL is correct and publicly accessible",
		Code:    "EXT001",
	},
	KindUnreadable: {
		Message: "The document could not be read",
		Action:  "Make sure the file is a valid, unprotected PDF or HTML page",
		Code:    "EXT002",
	},
	KindTimeout: {
		Message: "Downloading the document timed out",
		Action:  "Try again later or host the document somewhere faster",
		Code:    "EXT003",
	},
	KindNetwork: {
		Message: "The document host could not be reached",
		Action:  "Check the URL and try again",
		Code:    "EXT004",
	},
}

var registryMessages = map[FailureKind]UserMessage{
	KindNotFound: {
		Message: "The company was not found in the registry",
		Action:  "Check the tax identifier printed on the document",
		Code:    "REG001",
	},
	KindTimeout: {
		Message: "The company registry did not answer in time",
		Action:  "Run the validation again in a few minutes",
		Code:    "REG002",
	},
	KindNetwork: {
		Message: "The company registry is unavailable",
		Action:  "Run the validation again in a few minutes",
		Code:    "REG003",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages for errors raised outside this package.
var errorPatterns = []errorPattern{
	// Reference spreadsheet (REF001-REF004)
	{
		pattern: "reference not found",
		msg: UserMessage{
			Message: "The reference spreadsheet is no longer loaded",
			Action:  "Load the spreadsheet again before validating",
			Code:    "REF001",
		},
	},
	{
		pattern: "sheet unavailable",
		msg: UserMessage{
			Message: "The spreadsheet could not be downloaded",
			Action:  "Check that the sheet is published as CSV and the link is public",
			Code:    "REF002",
		},
	},
	{
		pattern: "invalid sheet",
		msg: UserMessage{
			Message: "The spreadsheet is not a valid CSV file",
			Action:  "Export the sheet as CSV and try again",
			Code:    "REF003",
		},
	},
	{
		pattern: "sheet too large",
		msg: UserMessage{
			Message: "The spreadsheet exceeds the maximum size",
			Action:  "Remove unused rows or split the sheet",
			Code:    "REF004",
		},
	},

	// Run sessions (RUN001-RUN003)
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Validation run not found",
			Action:  "The run may have expired. Please start a new validation",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "The system is busy with other validations",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run not finished",
		msg: UserMessage{
			Message: "The validation is still running",
			Action:  "Wait for the run to finish before downloading the report",
			Code:    "RUN003",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},

	// Request lifecycle
	{
		pattern: "bad request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the JSON body and required fields",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context canceled",
		msg:     msgCancelled,
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Try again with fewer documents",
			Code:    "RUN004",
		},
	},
}

// MapError converts a technical error to a user-friendly message.
// Returns a generic message with code ERR000 if nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	switch {
	case errors.Is(err, ErrEmptyBatch):
		return msgEmptyBatch
	case errors.Is(err, ErrBatchTooLarge):
		return msgBatchTooLarge
	case errors.Is(err, ErrCancelledBatch), errors.Is(err, context.Canceled):
		return msgCancelled
	}

	var ee *ExtractionError
	if errors.As(err, &ee) {
		if msg, ok := extractionMessages[ee.Kind]; ok {
			return msg
		}
	}
	var re *RegistryError
	if errors.As(err, &re) {
		if msg, ok := registryMessages[re.Kind]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(errStr, p.pattern) {
			return p.msg
		}
	}

	return msgUnknown
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != msgUnknown.Code
}

// UserError pairs a technical error with its user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

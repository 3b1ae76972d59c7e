package core

// error_messages.go maps technical errors to user-facing messages.
//
// Error Code Reference
//
// File errors (FILE001, FILE002, FILE004):
//
//	FILE001  file too large        Upload exceeds the configured size limit
//	FILE002  invalid csv           Malformed quoting or unreadable workbook
//	FILE004  no file provided      Multipart request had no file part
//
// Upload errors (UPL001-UPL005):
//
//	UPL001  context canceled       Client went away mid-upload
//	UPL002  too many uploads       All processing slots busy
//	UPL003  operation not found    Unknown operation id
//	UPL004  invalid transition     Operation already finished
//	UPL005  deadline exceeded      Upload ran past its time budget
//
// Database errors (DB001-DB008):
//
//	DB001-DB003  constraint violations
//	DB004-DB005  connection failures
//	DB006        statement timeout
//	DB007        deadlock
//	DB008        store unavailable (generic persistence failure)
//
// Patterns are matched in order against the lower-cased error text, so the
// sentinels from errors.go come first and the generic persistence fallback
// comes after the specific database causes it may wrap.

import (
	"fmt"
	"strings"
)

// UserMessage is the display form of an error.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Upload lifecycle
	{"too many concurrent uploads", UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{"upload deadline exceeded", UserMessage{
		Message: "Upload took too long to process",
		Action:  "Try uploading a smaller file or try again later",
		Code:    "UPL005",
	}},
	{"operation not found", UserMessage{
		Message: "Operation not found",
		Action:  "Check the operation id returned by the upload",
		Code:    "UPL003",
	}},
	{"invalid operation status transition", UserMessage{
		Message: "Operation has already finished",
		Action:  "Start a new upload",
		Code:    "UPL004",
	}},
	{"context canceled", UserMessage{
		Message: "Upload was cancelled",
		Action:  "Start a new upload when ready",
		Code:    "UPL001",
	}},

	// File problems
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV file to upload",
		Code:    "FILE004",
	}},
	{"file too large", UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Check for unbalanced quotes and consistent delimiters",
		Code:    "FILE002",
	}},

	// Database causes
	{"duplicate key", UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Review the file for duplicate policy numbers",
		Code:    "DB001",
	}},
	{"violates unique", UserMessage{
		Message: "A duplicate value was found",
		Action:  "Review your data for duplicate key values",
		Code:    "DB002",
	}},
	{"violates check constraint", UserMessage{
		Message: "A value was rejected by the database",
		Action:  "Check amounts and enumerated fields in your file",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try uploading a smaller file or try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"persistence unavailable", UserMessage{
		Message: "Policies could not be saved",
		Action:  "Please try again in a few moments",
		Code:    "DB008",
	}},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
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

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

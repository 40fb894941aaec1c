// Package core provides the business logic for valued-customer CSV imports.
//
// # Error Codes Reference
//
// Errors returned by the import pipeline are mapped to user-facing messages
// with a code that support staff can look up, and the HTTP status the web
// layer answers with.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large (413)
//	FILE002 - Malformed upload: no multipart file part, or unterminated quote (400)
//	FILE003 - Not a CSV: the payload contains no comma (400)
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Request body is not the expected JSON (400)
//	VAL004 - Invalid header: must be exactly Customer Name, Mother Code, Group (400)
//	VAL005 - Malformed row: a data row does not have three values (400)
//	VAL007 - Invalid identifier: not shaped DDDD-DDDDDD (400)
//
// # Identifier Errors (ID001-ID099)
//
//	ID001 - Identifier range exhausted (500)
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate identifier: another import claimed the same range (409)
//	DB004 - Connection refused (503)
//	DB005 - Connection reset (503)
//	DB007 - Deadlock (503)
//	DB008 - Batch rejected by storage; nothing was saved (500)
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - Too many imports in progress (503)
//	UPL004 - Request cancelled (408)
//	UPL005 - Request timed out; the batch may be resubmitted in full (504)
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - No customers matched the identifiers (404)
//
// # Default Error (ERR000)
//
//	ERR000 - Unexpected error (500). Check the logs for the technical error.
//
// Sentinel errors are matched with errors.Is, in table order. Errors that wrap
// no sentinel (driver errors, for instance) fall back to case-insensitive
// substring patterns.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
	Status  int    // HTTP status for the web layer
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages is checked before patterns. Order matters where errors
// wrap more than one sentinel: an exhausted retry wraps both ErrPersistence
// and ErrDuplicateIdentifier and must report DB008.
var sentinelMessages = []sentinelMessage{
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
		Status:  http.StatusRequestEntityTooLarge,
	}},
	{ErrMalformedUpload, UserMessage{
		Message: "Only CSV files are allowed",
		Action:  "Upload a single CSV file using the file field of a multipart form",
		Code:    "FILE002",
		Status:  http.StatusBadRequest,
	}},
	{ErrNotCSV, UserMessage{
		Message: "Only CSV files are allowed",
		Action:  "Ensure the file is comma-separated",
		Code:    "FILE003",
		Status:  http.StatusBadRequest,
	}},
	{ErrInvalidSchema, UserMessage{
		Message: "Invalid CSV format",
		Action:  "The first row must be exactly: Customer Name, Mother Code, Group",
		Code:    "VAL004",
		Status:  http.StatusBadRequest,
	}},
	{ErrMalformedRow, UserMessage{
		Message: "Some rows do not have three columns",
		Action:  "Fix the listed lines so each has Customer Name, Mother Code and Group",
		Code:    "VAL005",
		Status:  http.StatusBadRequest,
	}},
	{ErrInvalidRequest, UserMessage{
		Message: "Invalid request body",
		Action:  "Send a JSON object with a list of customer identifiers",
		Code:    "VAL001",
		Status:  http.StatusBadRequest,
	}},
	{ErrInvalidIdentifier, UserMessage{
		Message: "Invalid customer identifier",
		Action:  "Identifiers look like 9000-000001",
		Code:    "VAL007",
		Status:  http.StatusBadRequest,
	}},
	{ErrIdentifierOverflow, UserMessage{
		Message: "Customer identifier range is exhausted",
		Action:  "Contact support; no customers were saved",
		Code:    "ID001",
		Status:  http.StatusInternalServerError,
	}},
	{ErrRequestTimeout, UserMessage{
		Message: "Request timed out",
		Action:  "Check the customer list before resubmitting the whole file",
		Code:    "UPL005",
		Status:  http.StatusGatewayTimeout,
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Check the customer list before resubmitting the whole file",
		Code:    "UPL005",
		Status:  http.StatusGatewayTimeout,
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
		Status:  http.StatusRequestTimeout,
	}},
	{ErrPersistence, UserMessage{
		Message: "Failed to save customers; nothing was saved",
		Action:  "Resubmit the whole file",
		Code:    "DB008",
		Status:  http.StatusInternalServerError,
	}},
	{ErrDuplicateIdentifier, UserMessage{
		Message: "A customer with this ID already exists",
		Action:  "Resubmit the whole file",
		Code:    "DB001",
		Status:  http.StatusConflict,
	}},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
		Status:  http.StatusServiceUnavailable,
	}},
	{ErrNotFound, UserMessage{
		Message: "No data found for the provided IDs",
		Action:  "Check the identifiers and try again",
		Code:    "EXP001",
		Status:  http.StatusNotFound,
	}},
}

// errorPattern maps a technical error substring to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches driver and network errors that carry no sentinel.
// The first matching pattern wins.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A customer with this ID already exists",
			Action:  "Resubmit the whole file",
			Code:    "DB001",
			Status:  http.StatusConflict,
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
			Status:  http.StatusServiceUnavailable,
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
			Status:  http.StatusServiceUnavailable,
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
			Status:  http.StatusServiceUnavailable,
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
			Status:  http.StatusTooManyRequests,
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
	Status:  http.StatusInternalServerError,
}

// MapError converts an error to a user-friendly message.
//
// Example:
//
//	err := fmt.Errorf("parse upload: %w", ErrInvalidSchema)
//	msg := MapError(err)
//	// msg.Code == "VAL004", msg.Status == 400
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
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

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

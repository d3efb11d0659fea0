package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is what an import owner sees for a failure: what happened,
// what to do about it and a code to quote to support.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

// Support codes. FILE covers reading the upload, VAL row validation, DB
// storage, JOB job state, UPL upload acceptance, REQ malformed requests.
var catalog = map[string]UserMessage{
	"FILE001": {"File exceeds the maximum upload size", "Split the export into smaller files", "FILE001"},
	"FILE002": {"This file type is not supported", "Upload an .xlsx workbook or a .csv file", "FILE002"},
	"FILE003": {"The file could not be read as a spreadsheet", "Open the file in a spreadsheet program and save it as .xlsx or .csv", "FILE003"},
	"FILE004": {"No file was selected", "Please select a spreadsheet to upload", "FILE004"},
	"FILE005": {"The uploaded file is empty", "Export the history again and upload the new file", "FILE005"},
	"VAL001":  {"Invalid date format detected", "Use YYYY-MM-DD HH:MM:SS or DD.MM.YYYY", "VAL001"},
	"VAL002":  {"Invalid number format detected", "Use plain numbers such as 1234.56", "VAL002"},
	"VAL003":  {"Required field is empty", "Fill in the required columns for every row", "VAL003"},
	"VAL004":  {"Value is not in the allowed list", "Check the allowed values for this column", "VAL004"},
	"VAL005":  {"Unknown currency code", "Use a three-letter ISO 4217 code such as USD or PLN", "VAL005"},
	"DB001":   {"A record with this broker id already exists", "Review the duplicate rows in the error list", "DB001"},
	"DB004":   {"Unable to connect to database", "Please try again in a few moments", "DB004"},
	"DB005":   {"Database connection was interrupted", "Please try again", "DB005"},
	"DB006":   {"Operation timed out", "Try a smaller file or try again later", "DB006"},
	"DB007":   {"Database was busy with conflicting operations", "Please try again", "DB007"},
	"JOB001":  {"Import not found", "Check the import id or start a new upload", "JOB001"},
	"JOB002":  {"This action is not allowed in the import's current state", "Refresh the import status and try again", "JOB002"},
	"JOB003":  {"The import was only partly rolled back", "Retry the rollback to remove the remaining records", "JOB003"},
	"JOB004":  {"The import stopped responding and was stopped", "Upload the file again", "JOB004"},
	"JOB005":  {"The import failed unexpectedly", "Upload the file again or contact support", "JOB005"},
	"UPL002":  {"Too many imports in progress", "Please wait a moment and try again", "UPL002"},
	"UPL004":  {"Request was cancelled", "Please try again", "UPL004"},
	"UPL005":  {"Request timed out", "Try a smaller file or check your connection", "UPL005"},
	"REQ001":  {"The request is missing or has invalid parameters", "Check the upload form and try again", "REQ001"},
}

var fallbackMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

var sentinelCodes = []struct {
	err  error
	code string
}{
	{ErrJobNotFound, "JOB001"},
	{ErrJobStalled, "JOB004"},
	{ErrDuplicateRecord, "DB001"},
	{ErrTooManyUploads, "UPL002"},
	{ErrInvalidRequest, "REQ001"},
	{context.Canceled, "UPL004"},
	{context.DeadlineExceeded, "UPL005"},
}

// textCodes matches driver and library errors that carry no sentinel.
// Order matters: the first substring found wins.
var textCodes = []struct {
	pattern string
	code    string
}{
	{"file too large", "FILE001"},
	{"unsupported file type", "FILE002"},
	{"no file provided", "FILE004"},
	{"empty file", "FILE005"},
	{"invalid date", "VAL001"},
	{"invalid number", "VAL002"},
	{"is required", "VAL003"},
	{"must be one of", "VAL004"},
	{"currency code", "VAL005"},
	{"duplicate key", "DB001"},
	{"violates unique", "DB001"},
	{"connection refused", "DB004"},
	{"connection reset", "DB005"},
	{"timeout", "DB006"},
	{"deadlock", "DB007"},
	{"context canceled", "UPL004"},
}

// MapError converts err to the message shown to the import owner. Unknown
// errors map to ERR000; the technical error belongs in the logs.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if code := errorCode(err); code != "" {
		return catalog[code]
	}
	return fallbackMessage
}

func errorCode(err error) string {
	var (
		partial   *PartialRollbackError
		state     *InvalidStateError
		unhandled *UnhandledPipelineError
		format    *FileFormatError
	)
	switch {
	case errors.As(err, &partial):
		return "JOB003"
	case errors.As(err, &state):
		return "JOB002"
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}

	text := strings.ToLower(err.Error())
	for _, t := range textCodes {
		if strings.Contains(text, t.pattern) {
			return t.code
		}
	}
	// Wrappers last, so a recognised cause wins.
	switch {
	case errors.As(err, &format):
		return "FILE003"
	case errors.As(err, &unhandled):
		return "JOB005"
	}
	return ""
}

// FormatUserError renders MapError as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

package model

import (
	"strings"
)

// CommandResult is the outcome of one dispatched command.
type CommandResult struct {
	OK      bool
	Message string

	// Fatal means the vehicle link is gone and the connection should close.
	Fatal bool
}

// Success builds a successful result with an optional message.
func Success(msg string) CommandResult {
	return CommandResult{OK: true, Message: msg}
}

// Failure builds a failed result.
func Failure(msg string) CommandResult {
	return CommandResult{OK: false, Message: msg}
}

// Line renders the result as a single response line without the trailing newline.
func (r CommandResult) Line() string {
	msg := singleLine(r.Message)
	if r.OK {
		if msg == "" {
			return "OK"
		}
		return "OK: " + msg
	}
	return "ERROR: " + msg
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func singleLine(s string) string {
	return strings.TrimSpace(lineBreaks.Replace(s))
}

// Package apperr defines the coded rejections returned to API callers.
package apperr

import (
	"errors"
	"net/http"
)

// Definition is a user-facing rejection with a stable code.
type Definition struct {
	Code    string
	Message string
	Status  int
}

func (d Definition) Error() string {
	return d.Message
}

// Is matches definitions by code so wrapped copies with custom messages still compare equal.
func (d Definition) Is(target error) bool {
	var t Definition
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == d.Code
}

// WithMessage returns a copy of d carrying a more specific message.
func (d Definition) WithMessage(msg string) Definition {
	d.Message = msg
	return d
}

// Input validation.
var (
	InvalidCode  = Definition{Code: "INVALID_CODE", Message: "Invalid check-in code", Status: http.StatusBadRequest}
	NoStudentID  = Definition{Code: "NO_STUDENT_ID", Message: "Profile has no student id", Status: http.StatusBadRequest}
	InvalidInput = Definition{Code: "INVALID_INPUT", Message: "Invalid input", Status: http.StatusBadRequest}
)

// Lookup and authorization.
var (
	NotEnrolled   = Definition{Code: "NOT_ENROLLED", Message: "Student is not on the class roster", Status: http.StatusForbidden}
	ClassNotFound = Definition{Code: "CLASS_NOT_FOUND", Message: "Class not found", Status: http.StatusNotFound}
	DeviceBound   = Definition{Code: "DEVICE_BOUND", Message: "Device is bound to another account", Status: http.StatusForbidden}
	NotOwner      = Definition{Code: "NOT_OWNER", Message: "Only the class owner may do this", Status: http.StatusForbidden}
	Unauthorized  = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized", Status: http.StatusUnauthorized}
)

// State conflicts and data availability.
var (
	AlreadyCheckedIn = Definition{Code: "ALREADY_CHECKED_IN", Message: "Already checked in today", Status: http.StatusConflict}
	NoData           = Definition{Code: "NO_DATA", Message: "No attendance data", Status: http.StatusNotFound}
)

// StorageFailure is the generic transient failure.
var StorageFailure = Definition{Code: "STORAGE_FAILURE", Message: "Something went wrong, please try again", Status: http.StatusInternalServerError}

// From resolves err to a Definition. Anything unrecognised is a storage failure.
func From(err error) Definition {
	var d Definition
	if errors.As(err, &d) {
		return d
	}
	return StorageFailure
}

// IsInternal reports whether err resolves to the generic failure and should be reported.
func IsInternal(err error) bool {
	return From(err).Code == StorageFailure.Code
}

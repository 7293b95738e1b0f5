// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"errors"
	"fmt"
)

// Code is the stable machine-readable tag of an SDK error.
type Code string

const (
	CodeValidation      Code = "VALIDATION_FAILED"
	CodeNotInitialized  Code = "NOT_INITIALIZED"
	CodeInitFailed      Code = "INIT_FAILED"
	CodeEncryption      Code = "ENCRYPTION_FAILED"
	CodeDecryption      Code = "DECRYPTION_FAILED"
	CodeAddressMismatch Code = "ADDRESS_MISMATCH"
)

// Sentinel errors for errors.Is. Any *Error matches the sentinel with the
// same code.
var (
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrNotInitialized  = &Error{Code: CodeNotInitialized, Message: "FHEVM not initialized. Call Init() first"}
	ErrInitialization  = &Error{Code: CodeInitFailed, Message: "initialization failed"}
	ErrEncryption      = &Error{Code: CodeEncryption, Message: "encryption failed"}
	ErrDecryption      = &Error{Code: CodeDecryption, Message: "decryption failed"}
	ErrAddressMismatch = &Error{Code: CodeAddressMismatch, Message: "signer address does not match user address"}
)

// ErrNoSigner is wrapped in a decryption error when the client has no
// provider to obtain a signer from.
var ErrNoSigner = errors.New("provider not set: initialize with a provider for decryption")

// Error is the error type returned by every Client operation.
type Error struct {
	Code    Code
	Message string
	// Details carries diagnostics: {value, type} for encryption failures and
	// the redacted request for decryption failures.
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, msg string, details any, cause error) *Error {
	return &Error{Code: code, Message: msg, Details: details, Err: cause}
}

// ErrorCode extracts the code of an SDK error, or "" if err is not one.
func ErrorCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ValueDetails is attached to VALIDATION_FAILED and ENCRYPTION_FAILED errors.
type ValueDetails struct {
	Value any
	Type  EncryptType
}

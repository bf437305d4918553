// Package protocol defines the wire format of the realm authentication
// protocol: command opcodes, result codes, the packet codec and the message
// layouts exchanged between a game client and the gateway.
package protocol

import (
	"errors"
	"fmt"
)

// Codec and message errors.
var (
	// ErrTruncated is returned when a read would run past the end of a packet.
	ErrTruncated = errors.New("truncated packet")

	// ErrMalformedPacket is returned when a packet is complete but its
	// contents are inconsistent (wrong command byte, bad length field).
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrUnexpectedCommand is returned when a message decoder is handed a
	// packet with a different command byte.
	ErrUnexpectedCommand = errors.New("unexpected command")
)

// AuthResult is the result code carried in challenge and proof responses.
type AuthResult uint8

// Result codes understood by the game client.
const (
	// ResultSuccess indicates the step succeeded.
	ResultSuccess AuthResult = 0x00
	// ResultBanned indicates a permanent ban.
	ResultBanned AuthResult = 0x03
	// ResultUnknownAccount indicates the account does not exist.
	ResultUnknownAccount AuthResult = 0x04
	// ResultIncorrectPassword indicates the proof did not verify.
	ResultIncorrectPassword AuthResult = 0x05
	// ResultAlreadyOnline indicates the account is already logged in.
	ResultAlreadyOnline AuthResult = 0x06
	// ResultNoTime indicates the account has no play time left.
	ResultNoTime AuthResult = 0x07
	// ResultDBBusy indicates the account store could not serve the request.
	ResultDBBusy AuthResult = 0x08
	// ResultVersionInvalid indicates the client build is not accepted.
	ResultVersionInvalid AuthResult = 0x09
	// ResultVersionUpdate indicates the client must patch.
	ResultVersionUpdate AuthResult = 0x0A
	// ResultInvalidServer indicates the server is not valid.
	ResultInvalidServer AuthResult = 0x0B
	// ResultSuspended indicates a temporary ban or lockout.
	ResultSuspended AuthResult = 0x0C
	// ResultNoAccess indicates the account has no access.
	ResultNoAccess AuthResult = 0x0D
	// ResultSuccessSurvey indicates success with a pending survey.
	ResultSuccessSurvey AuthResult = 0x0E
	// ResultParentControl indicates parental control blocked the login.
	ResultParentControl AuthResult = 0x0F
	// ResultLockedEnforced indicates the account is locked to another IP.
	ResultLockedEnforced AuthResult = 0x10
)

var resultNames = map[AuthResult]string{
	ResultSuccess:           "SUCCESS",
	ResultBanned:            "BANNED",
	ResultUnknownAccount:    "UNKNOWN_ACCOUNT",
	ResultIncorrectPassword: "INCORRECT_PASSWORD",
	ResultAlreadyOnline:     "ALREADY_ONLINE",
	ResultNoTime:            "NO_TIME",
	ResultDBBusy:            "DB_BUSY",
	ResultVersionInvalid:    "VERSION_INVALID",
	ResultVersionUpdate:     "VERSION_UPDATE",
	ResultInvalidServer:     "INVALID_SERVER",
	ResultSuspended:         "SUSPENDED",
	ResultNoAccess:          "NOACCESS",
	ResultSuccessSurvey:     "SUCCESS_SURVEY",
	ResultParentControl:     "PARENTCONTROL",
	ResultLockedEnforced:    "LOCKED_ENFORCED",
}

// String returns the protocol name of the result code.
func (r AuthResult) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("AuthResult(0x%02X)", uint8(r))
}

// ResultError is returned by client-side decoders when the server answered
// with a non-success result code.
type ResultError struct {
	Command AuthCmd
	Result  AuthResult
}

// Error implements the error interface.
func (e *ResultError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Result)
}

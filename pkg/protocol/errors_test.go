package protocol_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fzdarsky/realmgate/pkg/protocol"
	"github.com/stretchr/testify/assert"
)

func TestAuthResult_String(t *testing.T) {
	tests := []struct {
		result   protocol.AuthResult
		expected string
	}{
		{protocol.ResultSuccess, "SUCCESS"},
		{protocol.ResultBanned, "BANNED"},
		{protocol.ResultUnknownAccount, "UNKNOWN_ACCOUNT"},
		{protocol.ResultIncorrectPassword, "INCORRECT_PASSWORD"},
		{protocol.ResultDBBusy, "DB_BUSY"},
		{protocol.ResultVersionInvalid, "VERSION_INVALID"},
		{protocol.ResultSuspended, "SUSPENDED"},
		{protocol.ResultLockedEnforced, "LOCKED_ENFORCED"},
		{protocol.AuthResult(0x42), "AuthResult(0x42)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.String())
		})
	}
}

func TestResultCodes_WireValues(t *testing.T) {
	assert.Equal(t, uint8(0x03), uint8(protocol.ResultBanned))
	assert.Equal(t, uint8(0x04), uint8(protocol.ResultUnknownAccount))
	assert.Equal(t, uint8(0x05), uint8(protocol.ResultIncorrectPassword))
	assert.Equal(t, uint8(0x0C), uint8(protocol.ResultSuspended))
	assert.Equal(t, uint8(0x10), uint8(protocol.ResultLockedEnforced))
}

func TestResultError(t *testing.T) {
	err := fmt.Errorf("logon failed: %w", &protocol.ResultError{
		Command: protocol.CmdLogonProof,
		Result:  protocol.ResultIncorrectPassword,
	})

	var resultErr *protocol.ResultError
	assert.True(t, errors.As(err, &resultErr))
	assert.Equal(t, protocol.ResultIncorrectPassword, resultErr.Result)
	assert.Equal(t, "AUTH_LOGON_PROOF failed: INCORRECT_PASSWORD", resultErr.Error())
}

func TestAuthCmd(t *testing.T) {
	assert.Equal(t, "AUTH_LOGON_CHALLENGE", protocol.CmdLogonChallenge.String())
	assert.Equal(t, "REALM_LIST", protocol.CmdRealmList.String())
	assert.Equal(t, "AuthCmd(0x7F)", protocol.AuthCmd(0x7F).String())

	assert.True(t, protocol.CmdXferInitiate.IsTransfer())
	assert.True(t, protocol.CmdXferCancel.IsTransfer())
	assert.False(t, protocol.CmdRealmList.IsTransfer())
	assert.False(t, protocol.CmdLogonProof.IsTransfer())
}

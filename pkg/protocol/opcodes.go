package protocol

import "fmt"

// AuthCmd is the first byte of every packet.
type AuthCmd uint8

// Command opcodes.
const (
	CmdLogonChallenge     AuthCmd = 0x00
	CmdLogonProof         AuthCmd = 0x01
	CmdReconnectChallenge AuthCmd = 0x02
	CmdReconnectProof     AuthCmd = 0x03
	CmdRealmList          AuthCmd = 0x10
	CmdXferInitiate       AuthCmd = 0x30
	CmdXferData           AuthCmd = 0x31
	CmdXferAccept         AuthCmd = 0x32
	CmdXferResume         AuthCmd = 0x33
	CmdXferCancel         AuthCmd = 0x34
)

var cmdNames = map[AuthCmd]string{
	CmdLogonChallenge:     "AUTH_LOGON_CHALLENGE",
	CmdLogonProof:         "AUTH_LOGON_PROOF",
	CmdReconnectChallenge: "AUTH_RECONNECT_CHALLENGE",
	CmdReconnectProof:     "AUTH_RECONNECT_PROOF",
	CmdRealmList:          "REALM_LIST",
	CmdXferInitiate:       "XFER_INITIATE",
	CmdXferData:           "XFER_DATA",
	CmdXferAccept:         "XFER_ACCEPT",
	CmdXferResume:         "XFER_RESUME",
	CmdXferCancel:         "XFER_CANCEL",
}

// String returns the protocol name of the command.
func (c AuthCmd) String() string {
	if name, ok := cmdNames[c]; ok {
		return name
	}
	return fmt.Sprintf("AuthCmd(0x%02X)", uint8(c))
}

// IsTransfer reports whether the command belongs to the patch transfer
// protocol, which the gateway does not serve.
func (c AuthCmd) IsTransfer() bool {
	return c >= CmdXferInitiate && c <= CmdXferCancel
}

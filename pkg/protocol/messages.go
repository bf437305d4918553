package protocol

import (
	"fmt"
	"strings"
)

// Fixed packet sizes.
const (
	// ChallengeHeaderSize is cmd, error and the u16 size that precedes the
	// body of logon and reconnect challenges.
	ChallengeHeaderSize = 4

	// ChallengeMinSize is the challenge length up to and including the
	// username length byte.
	ChallengeMinSize = 34

	// LogonProofSize is the fixed part of a logon proof.
	LogonProofSize = 75

	// ReconnectProofSize is the full reconnect proof.
	ReconnectProofSize = 58

	// RealmListRequestSize is the full realm list request.
	RealmListRequestSize = 5
)

// Logon challenge offsets.
const (
	offChallengeCmd      = 0
	offChallengeError    = 1
	offChallengeSize     = 2
	offChallengeGameName = 4
	offChallengeVersion1 = 8
	offChallengeVersion2 = 9
	offChallengeVersion3 = 10
	offChallengeBuild    = 11
	offChallengePlatform = 13
	offChallengeOS       = 17
	offChallengeLocale   = 21
	offChallengeTimezone = 25
	offChallengeIP       = 29
	offChallengeUserLen  = 33
	offChallengeUser     = 34
)

// Logon proof offsets.
const (
	offProofA          = 1
	offProofM1         = 33
	offProofCRC        = 53
	offProofNumKeys    = 73
	offProofSecurity   = 74
	offProofTokenLen   = 75
	offProofTokenStart = 76
)

// Security flags announced in the challenge response.
const (
	SecurityFlagPIN    uint8 = 0x01
	SecurityFlagMatrix uint8 = 0x02
	SecurityFlagToken  uint8 = 0x04
)

// VersionChallenge is the fixed 16-byte value sent after the salt.
var VersionChallenge = [16]byte{
	0xBA, 0xA3, 0x1E, 0x99, 0xA0, 0x0B, 0x21, 0x57,
	0xFC, 0x37, 0x3F, 0xB3, 0x69, 0xCD, 0xD2, 0xF1,
}

// LogonChallenge is the first client packet of a logon or reconnect.
type LogonChallenge struct {
	Command      AuthCmd
	Error        uint8
	Size         uint16
	GameName     string
	Version1     uint8 // expansion
	Version2     uint8
	Version3     uint8
	Build        uint16
	Platform     string
	OS           string
	Locale       string
	TimezoneBias uint32
	ClientIP     string // dotted form of the four address bytes, in wire order
	Username     string // uppercased on parse; account names are stored uppercase
}

// Version returns the "x.y.z" client version.
func (c *LogonChallenge) Version() string {
	return fmt.Sprintf("%d.%d.%d", c.Version1, c.Version2, c.Version3)
}

// ParseLogonChallenge decodes a logon or reconnect challenge. The command
// byte must equal want.
func ParseLogonChallenge(data []byte, want AuthCmd) (*LogonChallenge, error) {
	r := NewReader(data)
	if r.Len() < ChallengeMinSize {
		return nil, fmt.Errorf("%w: challenge is %d bytes, need %d", ErrTruncated, r.Len(), ChallengeMinSize)
	}

	cmd, _ := r.U8(offChallengeCmd)
	if AuthCmd(cmd) != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedCommand, AuthCmd(cmd), want)
	}

	c := &LogonChallenge{Command: want}
	c.Error, _ = r.U8(offChallengeError)
	c.Size, _ = r.U16(offChallengeSize)
	c.Version1, _ = r.U8(offChallengeVersion1)
	c.Version2, _ = r.U8(offChallengeVersion2)
	c.Version3, _ = r.U8(offChallengeVersion3)
	c.Build, _ = r.U16(offChallengeBuild)
	c.TimezoneBias, _ = r.U32(offChallengeTimezone)

	gameName, _ := r.Bytes(offChallengeGameName, 4)
	c.GameName = strings.TrimRight(string(gameName), "\x00")
	c.Platform, _ = r.ReversedString(offChallengePlatform, 4)
	c.OS, _ = r.ReversedString(offChallengeOS, 4)
	c.Locale, _ = r.ReversedString(offChallengeLocale, 4)

	ip, _ := r.Bytes(offChallengeIP, 4)
	c.ClientIP = fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])

	userLen, _ := r.U8(offChallengeUserLen)
	user, err := r.Bytes(offChallengeUser, int(userLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read username: %w", err)
	}
	c.Username = strings.ToUpper(string(user))

	return c, nil
}

// Encode serializes the challenge as a client would send it. Size is
// recomputed from the body.
func (c *LogonChallenge) Encode() []byte {
	w := NewWriter(ChallengeMinSize + len(c.Username))
	w.U8(uint8(c.Command)).U8(c.Error).U16(0)
	w.Raw(fixedTag(c.GameName, false))
	w.U8(c.Version1).U8(c.Version2).U8(c.Version3)
	w.U16(c.Build)
	w.Raw(fixedTag(c.Platform, true))
	w.Raw(fixedTag(c.OS, true))
	w.Raw(fixedTag(c.Locale, true))
	w.U32(c.TimezoneBias)
	w.Raw(parseDottedIP(c.ClientIP))
	w.U8(uint8(len(c.Username)))
	w.Raw([]byte(c.Username))
	w.PutU16At(offChallengeSize, uint16(w.Len()-ChallengeHeaderSize))
	return w.Bytes()
}

// ChallengeResponse is the server answer to a logon challenge.
type ChallengeResponse struct {
	Result        AuthResult
	B             []byte // 32 bytes
	G             []byte
	N             []byte // 32 bytes
	Salt          []byte // 32 bytes
	SecurityFlags uint8
}

// Encode serializes the response. A non-success result yields the 3-byte
// failure form.
func (r *ChallengeResponse) Encode() []byte {
	w := NewWriter(128)
	w.U8(uint8(CmdLogonChallenge)).U8(0).U8(uint8(r.Result))
	if r.Result != ResultSuccess {
		return w.Bytes()
	}

	w.Raw(r.B)
	w.U8(uint8(len(r.G))).Raw(r.G)
	w.U8(uint8(len(r.N))).Raw(r.N)
	w.Raw(r.Salt)
	w.Raw(VersionChallenge[:])
	w.U8(r.SecurityFlags)

	if r.SecurityFlags&SecurityFlagPIN != 0 {
		w.U32(0).U64(0).U64(0)
	}
	if r.SecurityFlags&SecurityFlagMatrix != 0 {
		w.U8(0).U8(0).U8(0).U8(0).U64(0)
	}
	if r.SecurityFlags&SecurityFlagToken != 0 {
		w.U8(1)
	}
	return w.Bytes()
}

// ParseChallengeResponse decodes a challenge response on the client side.
// A non-success result is returned as *ResultError.
func ParseChallengeResponse(data []byte) (*ChallengeResponse, error) {
	r := NewReader(data)
	cmd, err := r.U8(0)
	if err != nil {
		return nil, err
	}
	if AuthCmd(cmd) != CmdLogonChallenge {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedCommand, AuthCmd(cmd))
	}
	result, err := r.U8(2)
	if err != nil {
		return nil, err
	}
	if AuthResult(result) != ResultSuccess {
		return nil, &ResultError{Command: CmdLogonChallenge, Result: AuthResult(result)}
	}

	resp := &ChallengeResponse{Result: ResultSuccess}
	off := 3
	if resp.B, err = r.Bytes(off, 32); err != nil {
		return nil, err
	}
	off += 32

	gLen, err := r.U8(off)
	if err != nil {
		return nil, err
	}
	if resp.G, err = r.Bytes(off+1, int(gLen)); err != nil {
		return nil, err
	}
	off += 1 + int(gLen)

	nLen, err := r.U8(off)
	if err != nil {
		return nil, err
	}
	if resp.N, err = r.Bytes(off+1, int(nLen)); err != nil {
		return nil, err
	}
	off += 1 + int(nLen)

	if resp.Salt, err = r.Bytes(off, 32); err != nil {
		return nil, err
	}
	off += 32 + len(VersionChallenge)

	if resp.SecurityFlags, err = r.U8(off); err != nil {
		return nil, err
	}
	return resp, nil
}

// LogonProof is the client proof packet.
type LogonProof struct {
	A             []byte // 32 bytes
	M1            []byte // 20 bytes
	CRCHash       []byte // 20 bytes
	NumberOfKeys  uint8
	SecurityFlags uint8
	Token         string // present when SecurityFlagToken is set
}

// ParseLogonProof decodes a logon proof. Packets shorter than
// LogonProofSize fail with ErrTruncated.
func ParseLogonProof(data []byte) (*LogonProof, error) {
	r := NewReader(data)
	if r.Len() < LogonProofSize {
		return nil, fmt.Errorf("%w: proof is %d bytes, need %d", ErrTruncated, r.Len(), LogonProofSize)
	}

	cmd, _ := r.U8(0)
	if AuthCmd(cmd) != CmdLogonProof {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedCommand, AuthCmd(cmd))
	}

	p := &LogonProof{}
	p.A, _ = r.Bytes(offProofA, 32)
	p.M1, _ = r.Bytes(offProofM1, 20)
	p.CRCHash, _ = r.Bytes(offProofCRC, 20)
	p.NumberOfKeys, _ = r.U8(offProofNumKeys)
	p.SecurityFlags, _ = r.U8(offProofSecurity)

	if p.SecurityFlags&SecurityFlagToken != 0 {
		tokenLen, err := r.U8(offProofTokenLen)
		if err != nil {
			return nil, fmt.Errorf("failed to read token length: %w", err)
		}
		token, err := r.Bytes(offProofTokenStart, int(tokenLen))
		if err != nil {
			return nil, fmt.Errorf("failed to read token: %w", err)
		}
		p.Token = string(token)
	}

	return p, nil
}

// Encode serializes the proof as a client would send it.
func (p *LogonProof) Encode() []byte {
	w := NewWriter(LogonProofSize + 1 + len(p.Token))
	w.U8(uint8(CmdLogonProof))
	w.Raw(fixedBytes(p.A, 32))
	w.Raw(fixedBytes(p.M1, 20))
	w.Raw(fixedBytes(p.CRCHash, 20))
	w.U8(p.NumberOfKeys).U8(p.SecurityFlags)
	if p.SecurityFlags&SecurityFlagToken != 0 {
		w.U8(uint8(len(p.Token))).Raw([]byte(p.Token))
	}
	return w.Bytes()
}

// Account flags sent on a successful proof.
const (
	AccountFlagProPass uint32 = 0x00800000
)

// ProofResponse is the server answer to a logon proof.
type ProofResponse struct {
	Result       AuthResult
	M2           []byte // 20 bytes
	AccountFlags uint32
	SurveyID     uint32
	LoginFlags   uint16
}

// Encode serializes the response. A non-success result yields the 4-byte
// failure form.
func (r *ProofResponse) Encode() []byte {
	w := NewWriter(32)
	w.U8(uint8(CmdLogonProof)).U8(uint8(r.Result))
	if r.Result != ResultSuccess {
		w.U16(0)
		return w.Bytes()
	}
	w.Raw(fixedBytes(r.M2, 20))
	w.U32(r.AccountFlags).U32(r.SurveyID).U16(r.LoginFlags)
	return w.Bytes()
}

// ParseProofResponse decodes a proof response on the client side.
func ParseProofResponse(data []byte) (*ProofResponse, error) {
	r := NewReader(data)
	cmd, err := r.U8(0)
	if err != nil {
		return nil, err
	}
	if AuthCmd(cmd) != CmdLogonProof {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedCommand, AuthCmd(cmd))
	}
	result, err := r.U8(1)
	if err != nil {
		return nil, err
	}
	if AuthResult(result) != ResultSuccess {
		return nil, &ResultError{Command: CmdLogonProof, Result: AuthResult(result)}
	}

	resp := &ProofResponse{Result: ResultSuccess}
	if resp.M2, err = r.Bytes(2, 20); err != nil {
		return nil, err
	}
	if resp.AccountFlags, err = r.U32(22); err != nil {
		return nil, err
	}
	if resp.SurveyID, err = r.U32(26); err != nil {
		return nil, err
	}
	if resp.LoginFlags, err = r.U16(30); err != nil {
		return nil, err
	}
	return resp, nil
}

// ReconnectChallengeResponse is the server answer to a reconnect challenge.
type ReconnectChallengeResponse struct {
	Result    AuthResult
	Challenge []byte // 16 bytes
}

// Encode serializes the response. Failures are two bytes.
func (r *ReconnectChallengeResponse) Encode() []byte {
	w := NewWriter(34)
	w.U8(uint8(CmdReconnectChallenge)).U8(uint8(r.Result))
	if r.Result != ResultSuccess {
		return w.Bytes()
	}
	w.Raw(fixedBytes(r.Challenge, 16))
	w.Raw(make([]byte, 16))
	return w.Bytes()
}

// ParseReconnectChallengeResponse decodes the response on the client side.
func ParseReconnectChallengeResponse(data []byte) (*ReconnectChallengeResponse, error) {
	r := NewReader(data)
	cmd, err := r.U8(0)
	if err != nil {
		return nil, err
	}
	if AuthCmd(cmd) != CmdReconnectChallenge {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedCommand, AuthCmd(cmd))
	}
	result, err := r.U8(1)
	if err != nil {
		return nil, err
	}
	if AuthResult(result) != ResultSuccess {
		return nil, &ResultError{Command: CmdReconnectChallenge, Result: AuthResult(result)}
	}
	challenge, err := r.Bytes(2, 16)
	if err != nil {
		return nil, err
	}
	return &ReconnectChallengeResponse{Result: ResultSuccess, Challenge: challenge}, nil
}

// ReconnectProof is the client answer to a reconnect challenge.
type ReconnectProof struct {
	R1           []byte // 16 bytes
	R2           []byte // 20 bytes
	R3           []byte // 20 bytes
	NumberOfKeys uint8
}

// ParseReconnectProof decodes a reconnect proof.
func ParseReconnectProof(data []byte) (*ReconnectProof, error) {
	r := NewReader(data)
	if r.Len() < ReconnectProofSize {
		return nil, fmt.Errorf("%w: reconnect proof is %d bytes, need %d", ErrTruncated, r.Len(), ReconnectProofSize)
	}
	cmd, _ := r.U8(0)
	if AuthCmd(cmd) != CmdReconnectProof {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedCommand, AuthCmd(cmd))
	}

	p := &ReconnectProof{}
	p.R1, _ = r.Bytes(1, 16)
	p.R2, _ = r.Bytes(17, 20)
	p.R3, _ = r.Bytes(37, 20)
	p.NumberOfKeys, _ = r.U8(57)
	return p, nil
}

// Encode serializes the reconnect proof.
func (p *ReconnectProof) Encode() []byte {
	w := NewWriter(ReconnectProofSize)
	w.U8(uint8(CmdReconnectProof))
	w.Raw(fixedBytes(p.R1, 16))
	w.Raw(fixedBytes(p.R2, 20))
	w.Raw(fixedBytes(p.R3, 20))
	w.U8(p.NumberOfKeys)
	return w.Bytes()
}

// EncodeReconnectProofResponse serializes the 4-byte reconnect proof answer.
func EncodeReconnectProofResponse(result AuthResult) []byte {
	return NewWriter(4).U8(uint8(CmdReconnectProof)).U8(uint8(result)).U16(0).Bytes()
}

// fixedTag renders a four character tag, NUL padded. Reversed tags are
// stored back to front, so "x86" goes on the wire as "\x0068x".
func fixedTag(s string, reversed bool) []byte {
	out := make([]byte, 4)
	copy(out, s)
	if reversed {
		for i, j := 0, 3; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func fixedBytes(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func parseDottedIP(s string) []byte {
	out := make([]byte, 4)
	var a, b, c, d int
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); err == nil {
		out[0], out[1], out[2], out[3] = byte(a), byte(b), byte(c), byte(d)
	}
	return out
}

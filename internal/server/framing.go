package server

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fzdarsky/realmgate/pkg/protocol"
)

// maxChallengeBody bounds the size field of a challenge: the fixed fields
// after the header plus a username of at most 255 bytes.
const maxChallengeBody = protocol.ChallengeMinSize - protocol.ChallengeHeaderSize + 255

// ErrFrameTooLarge is returned when a length field announces more data than
// any valid packet carries.
var ErrFrameTooLarge = errors.New("frame too large")

// ReadPacket reads one client packet from r. The packet length is derived
// from the opcode: challenges carry a size field, proofs and the realm list
// request have fixed sizes, and a logon proof announcing a token is followed
// by a length-prefixed token. An unknown opcode is returned as a one byte
// packet so the session can reject it.
//
// The returned slice is freshly allocated and owned by the caller.
func ReadPacket(r *bufio.Reader) ([]byte, error) {
	op, err := r.Peek(1)
	if err != nil {
		return nil, err
	}

	switch protocol.AuthCmd(op[0]) {
	case protocol.CmdLogonChallenge, protocol.CmdReconnectChallenge:
		header, err := readFull(r, protocol.ChallengeHeaderSize)
		if err != nil {
			return nil, err
		}
		size := int(binary.LittleEndian.Uint16(header[2:4]))
		if size > maxChallengeBody {
			return nil, fmt.Errorf("%w: challenge announces %d bytes", ErrFrameTooLarge, size)
		}
		body, err := readFull(r, size)
		if err != nil {
			return nil, err
		}
		return append(header, body...), nil

	case protocol.CmdLogonProof:
		pkt, err := readFull(r, protocol.LogonProofSize)
		if err != nil {
			return nil, err
		}
		if pkt[protocol.LogonProofSize-1]&protocol.SecurityFlagToken == 0 {
			return pkt, nil
		}
		n, err := r.ReadByte()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		token, err := readFull(r, int(n))
		if err != nil {
			return nil, err
		}
		pkt = append(pkt, n)
		return append(pkt, token...), nil

	case protocol.CmdReconnectProof:
		return readFull(r, protocol.ReconnectProofSize)

	case protocol.CmdRealmList:
		return readFull(r, protocol.RealmListRequestSize)

	default:
		return readFull(r, 1)
	}
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, unexpectedEOF(err)
	}
	return buf, nil
}

// unexpectedEOF maps a clean EOF in the middle of a packet to
// io.ErrUnexpectedEOF so callers can tell it from a closed idle connection.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

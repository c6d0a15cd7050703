package a2s

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Packet tags, the byte following the FF FF FF FF marker.
const (
	TagInfoRequest byte = 0x54 // 'T'
	TagChallenge   byte = 0x41 // 'A'
	TagInfo        byte = 0x49 // 'I'
	TagMultiPacket byte = 0xFE
)

const (
	// headerSize is the marker plus the tag byte.
	headerSize = 5

	// multiHeaderSize adds group id, fragment count and fragment index.
	multiHeaderSize = headerSize + 2 + 1 + 1

	// challengeSize is the minimal challenge token length.
	challengeSize = 4

	infoQuery = "Source Engine Query\x00"
)

var marker = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// infoRequest builds the A2S_INFO request datagram with the challenge token appended verbatim.
func infoRequest(challenge []byte) []byte {
	req := make([]byte, 0, headerSize+len(infoQuery)+len(challenge))
	req = append(req, marker...)
	req = append(req, TagInfoRequest)
	req = append(req, infoQuery...)

	return append(req, challenge...)
}

// responseTag validates the marker and returns the tag byte of a datagram.
func responseTag(op string, data []byte) (byte, error) {
	if len(data) < headerSize {
		return 0, newError(op, ErrMalformedResponse, fmt.Errorf("datagram of %d bytes has no header", len(data)))
	}
	if !bytes.Equal(data[:4], marker) {
		return 0, newError(op, ErrUnexpectedResponse, fmt.Errorf("bad marker % X", data[:4]))
	}

	return data[4], nil
}

// fragment is one datagram of a multi-packet response.
type fragment struct {
	payload []byte
	group   uint16
	total   byte
	index   byte
}

func parseFragment(data []byte) (fragment, error) {
	if len(data) < multiHeaderSize {
		return fragment{}, newError(OpReassemble, ErrMalformedResponse,
			fmt.Errorf("multi-packet datagram of %d bytes, header needs %d", len(data), multiHeaderSize))
	}

	f := fragment{
		group:   binary.LittleEndian.Uint16(data[5:7]),
		total:   data[7],
		index:   data[8],
		payload: data[multiHeaderSize:],
	}

	if f.total == 0 {
		return fragment{}, newError(OpReassemble, ErrMalformedResponse, fmt.Errorf("zero fragment count"))
	}
	if f.index >= f.total {
		return fragment{}, newError(OpReassemble, ErrMalformedResponse,
			fmt.Errorf("fragment index %d out of range for %d fragments", f.index, f.total))
	}

	return f, nil
}

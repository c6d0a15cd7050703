package fake

import (
	"encoding/binary"
)

var marker = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// InfoFields are the values written by EncodeInfo.
type InfoFields struct {
	Name        string
	Map         string
	Folder      string
	Game        string
	Version     string
	Keywords    string
	SteamID     uint64
	GamePort    uint16
	AppID       int16
	Protocol    byte
	Players     byte
	MaxPlayers  byte
	Bots        byte
	ServerType  byte
	Environment byte
	Visibility  byte
	VAC         byte
}

// EncodeInfo builds a complete S2A_INFO response datagram.
// The extra data flag section is written only when GamePort, SteamID or Keywords are set.
func EncodeInfo(f InfoFields) []byte {
	out := append([]byte{}, marker...)
	out = append(out, 0x49, f.Protocol)
	out = appendString(out, f.Name)
	out = appendString(out, f.Map)
	out = appendString(out, f.Folder)
	out = appendString(out, f.Game)
	out = binary.LittleEndian.AppendUint16(out, uint16(f.AppID))
	out = append(out, f.Players, f.MaxPlayers, f.Bots, f.ServerType, f.Environment, f.Visibility, f.VAC)
	out = appendString(out, f.Version)

	var edf byte
	if f.GamePort != 0 {
		edf |= 0x80
	}
	if f.SteamID != 0 {
		edf |= 0x10
	}
	if f.Keywords != "" {
		edf |= 0x20
	}
	if edf == 0 {
		return out
	}

	out = append(out, edf)
	if f.GamePort != 0 {
		out = binary.LittleEndian.AppendUint16(out, f.GamePort)
	}
	if f.SteamID != 0 {
		out = binary.LittleEndian.AppendUint64(out, f.SteamID)
	}
	if f.Keywords != "" {
		out = appendString(out, f.Keywords)
	}

	return out
}

// Packet builds a single datagram with the marker, a tag and a body.
func Packet(tag byte, body []byte) []byte {
	out := append([]byte{}, marker...)
	out = append(out, tag)

	return append(out, body...)
}

// ChallengePacket builds an S2C_CHALLENGE datagram carrying token.
func ChallengePacket(token []byte) []byte {
	return Packet(0x41, token)
}

// Fragment builds one multi-packet datagram.
func Fragment(group uint16, total, index byte, payload []byte) []byte {
	out := append([]byte{}, marker...)
	out = append(out, 0xFE)
	out = binary.LittleEndian.AppendUint16(out, group)
	out = append(out, total, index)

	return append(out, payload...)
}

// Split cuts response into multi-packet datagrams with at most size payload bytes each,
// indexed in order.
func Split(group uint16, response []byte, size int) [][]byte {
	var chunks [][]byte
	for len(response) > size {
		chunks = append(chunks, response[:size])
		response = response[size:]
	}
	chunks = append(chunks, response)

	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		out[i] = Fragment(group, byte(len(chunks)), byte(i), c)
	}

	return out
}

func appendString(out []byte, s string) []byte {
	out = append(out, s...)
	return append(out, 0)
}

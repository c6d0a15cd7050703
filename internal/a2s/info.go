package a2s

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Extra data flag bits of the A2S_INFO response.
const (
	edfGameID   = 0x01
	edfKeywords = 0x20
	edfSourceTV = 0x40
	edfSteamID  = 0x10
	edfPort     = 0x80
)

// appIDTheShip has extra fields between VAC and version that this parser does not read.
const appIDTheShip = 2400

// Info is the parsed A2S_INFO response.
type Info struct {
	Name   string `json:"name"`
	Map    string `json:"map"`
	Folder string `json:"folder"`
	Game   string `json:"game"`

	// Best effort fields, zero when the server omits them.
	Version      string `json:"version,omitempty"`
	SourceTVName string `json:"sourcetv_name,omitempty"`
	Keywords     string `json:"keywords,omitempty"`
	SteamID      uint64 `json:"steam_id,omitempty"`
	GameID       uint64 `json:"game_id,omitempty"`
	GamePort     uint16 `json:"game_port,omitempty"`
	SourceTVPort uint16 `json:"sourcetv_port,omitempty"`

	AppID       int16       `json:"app_id"`
	Protocol    byte        `json:"protocol"`
	Players     byte        `json:"players"`
	MaxPlayers  byte        `json:"max_players"`
	Bots        byte        `json:"bots"`
	ServerType  ServerType  `json:"server_type,omitempty"`
	Environment Environment `json:"environment,omitempty"`
	Visibility  byte        `json:"visibility"`
	VAC         byte        `json:"vac"`
}

// Environment is the server operating system byte.
type Environment byte

func (e Environment) String() string {
	switch e {
	case 'l':
		return "linux"
	case 'w':
		return "windows"
	case 'm', 'o':
		return "mac"
	default:
		return "unknown"
	}
}

// MarshalText renders the environment by name.
func (e Environment) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// ServerType is the server kind byte.
type ServerType byte

func (t ServerType) String() string {
	switch t {
	case 'd':
		return "dedicated"
	case 'l':
		return "non-dedicated"
	case 'p':
		return "proxy"
	default:
		return "unknown"
	}
}

// MarshalText renders the server type by name.
func (t ServerType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// parseInfo decodes an assembled response starting with FF FF FF FF 49.
// Fields after the bot count are optional; trailing bytes are ignored.
func parseInfo(data []byte) (*Info, error) {
	tag, err := responseTag(OpParse, data)
	if err != nil {
		return nil, err
	}
	if tag != TagInfo {
		return nil, newError(OpParse, ErrUnexpectedResponse, fmt.Errorf("payload tag 0x%02X", tag))
	}

	r := &reader{buf: data[headerSize:]}
	info := &Info{}

	info.Protocol = r.u8("protocol")
	info.Name = r.cstring("name")
	info.Map = r.cstring("map")
	info.Folder = r.cstring("folder")
	info.Game = r.cstring("game")
	info.AppID = int16(r.u16("app id"))
	info.Players = r.u8("players")
	info.MaxPlayers = r.u8("max players")
	info.Bots = r.u8("bots")

	if r.err != nil {
		return nil, newError(OpParse, ErrMalformedResponse, r.err)
	}

	parseExtended(r, info)

	return info, nil
}

// parseExtended fills the optional tail and stops silently at the first short field.
func parseExtended(r *reader, info *Info) {
	serverType := r.u8("server type")
	environment := r.u8("environment")
	visibility := r.u8("visibility")
	vac := r.u8("vac")
	if r.err != nil {
		return
	}
	info.ServerType = ServerType(serverType)
	info.Environment = Environment(environment)
	info.Visibility = visibility
	info.VAC = vac

	if info.AppID == appIDTheShip {
		return
	}

	version := r.cstring("version")
	if r.err != nil {
		return
	}
	info.Version = version

	edf := r.u8("edf")
	if r.err != nil {
		return
	}

	if edf&edfPort != 0 {
		if port := r.u16("game port"); r.err == nil {
			info.GamePort = port
		}
	}
	if edf&edfSteamID != 0 {
		if id := r.u64("steam id"); r.err == nil {
			info.SteamID = id
		}
	}
	if edf&edfSourceTV != 0 {
		port := r.u16("sourcetv port")
		name := r.cstring("sourcetv name")
		if r.err == nil {
			info.SourceTVPort = port
			info.SourceTVName = name
		}
	}
	if edf&edfKeywords != 0 {
		if keywords := r.cstring("keywords"); r.err == nil {
			info.Keywords = keywords
		}
	}
	if edf&edfGameID != 0 {
		if id := r.u64("game id"); r.err == nil {
			info.GameID = id
		}
	}
}

// reader is a little-endian cursor over a payload; the first short read sticks in err.
type reader struct {
	err error
	buf []byte
	off int
}

func (r *reader) take(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("read %s at offset %d: %w", field, r.off, io.ErrUnexpectedEOF)
		return nil
	}

	b := r.buf[r.off : r.off+n]
	r.off += n

	return b
}

func (r *reader) u8(field string) byte {
	if b := r.take(field, 1); b != nil {
		return b[0]
	}

	return 0
}

func (r *reader) u16(field string) uint16 {
	if b := r.take(field, 2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}

	return 0
}

func (r *reader) u64(field string) uint64 {
	if b := r.take(field, 8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}

	return 0
}

// cstring reads a zero-terminated single-byte string.
func (r *reader) cstring(field string) string {
	if r.err != nil {
		return ""
	}

	end := bytes.IndexByte(r.buf[r.off:], 0)
	if end < 0 {
		r.err = fmt.Errorf("read %s at offset %d: no terminator: %w", field, r.off, io.ErrUnexpectedEOF)
		return ""
	}

	raw := r.buf[r.off : r.off+end]
	r.off += end + 1

	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		sb.WriteRune(charmap.ISO8859_1.DecodeByte(b))
	}

	return sb.String()
}

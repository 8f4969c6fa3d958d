package extract

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

// Encoding names recorded in manifests.
const (
	EncodingASCII    = "ascii"
	EncodingShiftJIS = "shift_jis"
	EncodingUTF8     = "utf-8"
	EncodingLatin1   = "latin-1"
	EncodingRaw      = "raw"
)

// ErrDecode is returned when a byte run is not valid under a codec.
var ErrDecode = errors.New("decode failed")

// ErrEncode is returned when a string cannot be represented in a codec.
var ErrEncode = errors.New("encode failed")

// Codec is a pure, reversible mapping between raw bytes and text.
type Codec struct {
	// Name is the identifier stored in TextSpan.Encoding.
	Name string
	// Fill is the byte used to pad a shrunk replacement.
	Fill byte

	decode func([]byte) (string, error)
	encode func(string) ([]byte, error)
}

// Decode converts raw bytes to text.
func (c Codec) Decode(b []byte) (string, error) {
	return c.decode(b)
}

// Encode converts text back to raw bytes.
func (c Codec) Encode(s string) ([]byte, error) {
	return c.encode(s)
}

// Lossless reports whether b survives a decode/encode round trip unchanged.
func (c Codec) Lossless(b []byte) (string, bool) {
	text, err := c.decode(b)
	if err != nil {
		return "", false
	}
	back, err := c.encode(text)
	if err != nil {
		return "", false
	}
	return text, bytes.Equal(back, b)
}

var (
	asciiCodec = Codec{
		Name: EncodingASCII,
		Fill: ' ',
		decode: func(b []byte) (string, error) {
			for i, c := range b {
				if c > 0x7F {
					return "", fmt.Errorf("%w: byte 0x%02X at %d is not 7-bit", ErrDecode, c, i)
				}
			}
			return string(b), nil
		},
		encode: func(s string) ([]byte, error) {
			for i := 0; i < len(s); i++ {
				if s[i] > 0x7F {
					return nil, fmt.Errorf("%w: %q is not 7-bit", ErrEncode, s)
				}
			}
			return []byte(s), nil
		},
	}

	shiftJISCodec = xtextCodec(EncodingShiftJIS, japanese.ShiftJIS)

	utf8Codec = Codec{
		Name: EncodingUTF8,
		Fill: ' ',
		decode: func(b []byte) (string, error) {
			if !utf8.Valid(b) {
				return "", fmt.Errorf("%w: invalid utf-8", ErrDecode)
			}
			return string(b), nil
		},
		encode: func(s string) ([]byte, error) {
			if !utf8.ValidString(s) {
				return nil, fmt.Errorf("%w: invalid utf-8", ErrEncode)
			}
			return []byte(s), nil
		},
	}

	latin1Codec = xtextCodec(EncodingLatin1, charmap.ISO8859_1)

	rawCodec = Codec{
		Name: EncodingRaw,
		Fill: 0x00,
		decode: func(b []byte) (string, error) {
			return string(b), nil
		},
		encode: func(s string) ([]byte, error) {
			return []byte(s), nil
		},
	}
)

// xtextCodec adapts a golang.org/x/text encoding. The x/text decoders
// substitute U+FFFD for invalid input instead of failing, so a replacement
// rune in the output is treated as a decode error.
func xtextCodec(name string, enc encoding.Encoding) Codec {
	return Codec{
		Name: name,
		Fill: ' ',
		decode: func(b []byte) (string, error) {
			out, err := enc.NewDecoder().Bytes(b)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
			}
			if bytes.ContainsRune(out, utf8.RuneError) {
				return "", fmt.Errorf("%w: %s: invalid sequence", ErrDecode, name)
			}
			return string(out), nil
		},
		encode: func(s string) ([]byte, error) {
			out, err := enc.NewEncoder().Bytes([]byte(s))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrEncode, name, err)
			}
			return out, nil
		},
	}
}

// Codecs returns the decoding order used by the extractor.
func Codecs() []Codec {
	return []Codec{asciiCodec, shiftJISCodec, utf8Codec, latin1Codec}
}

// CodecByName looks up a codec by the name stored in a manifest.
func CodecByName(name string) (Codec, bool) {
	switch name {
	case EncodingASCII:
		return asciiCodec, true
	case EncodingShiftJIS:
		return shiftJISCodec, true
	case EncodingUTF8:
		return utf8Codec, true
	case EncodingLatin1:
		return latin1Codec, true
	case EncodingRaw:
		return rawCodec, true
	}
	return Codec{}, false
}

// UTF8 returns the fallback codec used when a translation does not fit the
// span's own encoding.
func UTF8() Codec {
	return utf8Codec
}

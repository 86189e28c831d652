package ingress

import (
	"encoding/base64"
	"errors"

	"github.com/vtranser/captionstream/internal/sttsession"
)

// ErrParseError is returned for malformed frames; the caller must count it
// as a PARSE_ERROR and discard the item rather than treat it as fatal.
var ErrParseError = errors.New("parse_error")

// dtypeElementSize returns the byte width of one sample for dtype, or 0 if
// unrecognized.
func dtypeElementSize(dtype sttsession.Dtype) int {
	switch dtype {
	case sttsession.DtypeI16:
		return 2
	case sttsession.DtypeF32:
		return 4
	default:
		return 0
	}
}

// ValidateFrameLength checks that len(buf) is a multiple of the declared
// dtype's element size: PARSE_ERROR is raised when audio frame bytes do
// not match the declared dtype's multiple.
func ValidateFrameLength(buf []byte, dtype sttsession.Dtype) error {
	size := dtypeElementSize(dtype)
	if size == 0 {
		return ErrParseError
	}
	if len(buf)%size != 0 {
		return ErrParseError
	}
	return nil
}

// DecodeBase64Audio decodes the `audio` field of a JSON-wrapped frame.
func DecodeBase64Audio(encoded string) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrParseError
	}
	return buf, nil
}

// DtypeFromString maps the wire "i16"/"f32" strings to sttsession.Dtype,
// defaulting to i16 (raw PCM is int16 little-endian by default, float32
// accepted).
func DtypeFromString(s string) sttsession.Dtype {
	switch s {
	case "f32":
		return sttsession.DtypeF32
	case "i16", "":
		return sttsession.DtypeI16
	default:
		return sttsession.Dtype(s)
	}
}

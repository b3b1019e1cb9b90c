package decode

import (
	"errors"

	"github.com/makiuchi-d/gozxing"
)

// ErrBufferSize is returned when a luma buffer is smaller than its dimensions
var ErrBufferSize = errors.New("luma buffer does not cover frame")

// Kind classifies a failed detection
type Kind int

const (
	// KindNotFound means no symbol was located
	KindNotFound Kind = iota
	// KindMalformed means a symbol was located but its content could not be read
	KindMalformed
	// KindEngine covers every other engine failure
	KindEngine
)

// String returns a human-readable string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	default:
		return "engine"
	}
}

// Classify maps a gozxing error onto a Kind.
//
// gozxing reports failures as exception interfaces; format and checksum
// exceptions mean the symbol was found but unreadable.
func Classify(err error) Kind {
	var notFound gozxing.NotFoundException
	if errors.As(err, &notFound) {
		return KindNotFound
	}

	var format gozxing.FormatException
	if errors.As(err, &format) {
		return KindMalformed
	}

	var checksum gozxing.ChecksumException
	if errors.As(err, &checksum) {
		return KindMalformed
	}

	return KindEngine
}

package archive

import "errors"

// Error definitions for the archive package.
var (
	ErrUnsafePath      = errors.New("archive entry escapes destination")
	ErrInvalidEncoding = errors.New("invalid base64 payload")
)

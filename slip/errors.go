package slip

import "errors"

var (
	// ErrIO reports a transport failure (the underlying Transport returned an error).
	ErrIO = errors.New("slip: transport error")

	// ErrEncoding reports a malformed escape sequence: an ESC byte followed
	// by anything other than the two recognized escape codes.
	ErrEncoding = errors.New("slip: malformed escape sequence")

	// ErrTimedOut reports that a transport call returned no progress within
	// its deadline.
	ErrTimedOut = errors.New("slip: timed out")

	// ErrInvalidArgument reports a nil transport or a read buffer requested
	// before BeginRead.
	ErrInvalidArgument = errors.New("slip: invalid argument")
)

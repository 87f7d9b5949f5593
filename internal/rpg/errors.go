package rpg

import "errors"

// Format errors abort the decode of the affected file. They signal corruption
// or misidentification and are never recoverable in-process; the caller decides
// whether to continue with other files.
var (
	// ErrUnknownFileType is returned when a filecode is not in the known table.
	ErrUnknownFileType = errors.New("unknown filecode")

	// ErrWrongFileType is returned when a filecode belongs to a different
	// record family than the one being decoded (filename/header mismatch).
	ErrWrongFileType = errors.New("filecode belongs to another record family")

	// ErrFileTooShort is returned when fewer bytes remain than the header's
	// declared record count requires.
	ErrFileTooShort = errors.New("file too short")

	// ErrFileTooLong is returned when bytes remain after the last declared record.
	ErrFileTooLong = errors.New("file too long")
)

// Value errors: the record is structurally valid but semantically inconsistent.
var (
	// ErrCoordinate is returned for coordinate encodings whose degree or
	// minute component is out of range.
	ErrCoordinate = errors.New("coordinate encoding out of range")

	// ErrUnknownFlagValue is returned when a packed flag carries a value
	// outside its documented domain.
	ErrUnknownFlagValue = errors.New("unknown flag value")

	// ErrDecode is returned for encodings outside their documented domain
	// (e.g. an unsupported angle encoding version).
	ErrDecode = errors.New("decode error")

	// ErrWrongNumberOfChannels is returned when the channel count assumed for
	// reading an old-format scan file disagrees with the count stored later in
	// the same header.
	ErrWrongNumberOfChannels = errors.New("wrong number of frequency channels assumed")

	// ErrLocalTimeRef is returned when a file declares local time but the run
	// requires UTC.
	ErrLocalTimeRef = errors.New("time encoded in local time but UTC required")
)

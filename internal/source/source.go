// Package source carries source-location primitives shared by every pass.
// The front end owns file contents; the middle end only needs stable file
// identifiers and byte spans to attribute diagnostics.
package source

// FileID identifies a source file registered by the front end.
type FileID uint32

// NoFileID marks the absence of a file.
const NoFileID FileID = 0

// IsValid reports whether the id refers to a registered file.
func (id FileID) IsValid() bool {
	return id != NoFileID
}

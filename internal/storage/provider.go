// Package storage defines the evidence payload store: the raw bytes behind
// each evidence record, addressed by a path relative to the store root.
package storage

import "time"

// PayloadInfo describes one stored payload.
type PayloadInfo struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Provider is the interface for payload file operations.
type Provider interface {
	// List returns metadata for every payload under dir (relative to root).
	List(dir string) ([]PayloadInfo, error)
	// Read returns the raw bytes of the payload at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
}

var _ Provider = (*FS)(nil)

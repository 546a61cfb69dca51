package fleetback

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
)

var (
	// TimeFormat is the format of every timestamp stored in the catalog.
	TimeFormat = "2006-01-02 15:04:05"

	// FolderTimeFormat is the format used to name timestamped backup folders.
	FolderTimeFormat = "2006_01_02__15_04"
)

// ShortIDLength is the number of leading id characters accepted as a short id.
const ShortIDLength = 8

// OSFamily is the operating system family of a backed up host.
type OSFamily string

const (
	OSUnix    OSFamily = "unix"
	OSWindows OSFamily = "windows"
	OSMacOS   OSFamily = "macos"
)

// BackupType is the transfer strategy used for a backup.
type BackupType string

const (
	TypeFull         BackupType = "full"
	TypeIncremental  BackupType = "incremental"
	TypeDifferential BackupType = "differential"
	TypeMirror       BackupType = "mirror"
)

// ParseOSFamily normalizes an operating system name. Legacy catalogs
// written with capitalized names ("Unix", "MacOS") are accepted.
func ParseOSFamily(s string) (OSFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unix", "linux":
		return OSUnix, nil
	case "windows":
		return OSWindows, nil
	case "macos":
		return OSMacOS, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownOSFamily, s)
}

// ParseBackupType normalizes a transfer strategy name.
func ParseBackupType(s string) (BackupType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return TypeFull, nil
	case "incremental":
		return TypeIncremental, nil
	case "differential":
		return TypeDifferential, nil
	case "mirror":
		return TypeMirror, nil
	}
	return "", fmt.Errorf("unknown backup type: %s", s)
}

// Record is one catalog entry, describing a single backup attempt and the
// snapshot folder it owns. Start, End and Status are only ever set by the
// scheduler; Cleaned and Archived are appended later by the retention and
// archive engines and are never cleared.
type Record struct {
	ID        string
	Host      string
	OS        OSFamily
	Type      BackupType
	Path      string
	Timestamp time.Time

	Start  *time.Time
	End    *time.Time
	Status *int

	Cleaned  bool
	Archived bool
}

// ShortID returns the 8-character short form of the record id.
func (r *Record) ShortID() string {
	if len(r.ID) < ShortIDLength {
		return r.ID
	}
	return r.ID[:ShortIDLength]
}

// Retired reports whether the record's snapshot data is gone from primary
// storage, either deleted by retention or moved away by the archiver.
func (r *Record) Retired() bool {
	return r.Cleaned || r.Archived
}

// IsChainAnchor reports whether the record can anchor an incremental chain.
func (r *Record) IsChainAnchor() bool {
	return r.Type == TypeFull || r.Type == TypeIncremental
}

// NewID generates a new backup id. Ids are time-ordered, so the catalog's
// insertion order matches creation order and the first 8 characters are
// usable as a short id.
func NewID() string {
	return xid.New().String()
}

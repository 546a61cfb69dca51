package fleetback

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// MirrorFolderName is the fixed, continuously overwritten destination folder
// of mirror-mode backups.
const MirrorFolderName = "mirror_backup"

// LastBackupLinkName is the convenience symlink kept next to a host's
// snapshot folders, pointing at the most recent one.
const LastBackupLinkName = "last_backup"

var composeLog = logrus.WithFields(logrus.Fields{
	"component": "composer",
})

// BackupRequest is a validated request to back up one host.
type BackupRequest struct {
	Host string
	User string
	OS   OSFamily

	// Mode is the requested strategy; the composer may degrade incremental
	// and differential to full when no usable baseline exists.
	Mode BackupType

	// Data selects taxonomy categories; CustomData bypasses the taxonomy
	// with explicit paths. Exactly one of the two is set.
	Data       []Category
	CustomData []string

	// StartFrom is an explicit baseline override: the id of a record whose
	// snapshot is attached as a copy source.
	StartFrom string

	// EnableLog adds a per-host transfer log to the job.
	EnableLog bool
}

// Job is one composed transfer, ready for the scheduler. Jobs are ephemeral:
// a retried job is a new value carrying the same originating record id.
type Job struct {
	ID      string
	Host    string
	Args    []string
	LogPath string
}

// Composer decides the transfer strategy of each backup, selects its
// baseline from the catalog and produces the destination layout. Catalog
// fields are written as the command is assembled, so a crash mid-assembly
// leaves a partially-described but inspectable record.
type Composer struct {
	Catalog  *Catalog
	Transfer *Transfer
}

// Compose builds the job for one host. The returned job's record already
// carries host, os, type, path and timestamp.
func (c *Composer) Compose(req BackupRequest) (Job, error) {
	id := NewID()

	strategy := req.Mode
	var baseline string

	switch req.Mode {
	case TypeFull, TypeMirror:
		// no baseline
		if req.Mode == TypeMirror {
			// A host has a single perpetually-current mirror record; reuse
			// it so repeated mirror runs do not accumulate catalog entries.
			if prev := lastMirror(c.Catalog, req.Host); prev != nil {
				id = prev.ID
			}
		}
	case TypeIncremental:
		last := LastBackup(c.Catalog, req.Host)
		if last == nil {
			composeLog.Infof("no previous backup for %s, falling back to full", req.Host)
			strategy = TypeFull
		} else if req.StartFrom == "" {
			baseline = last.Path
		}
	case TypeDifferential:
		last := LastFull(c.Catalog, req.Host)
		if last == nil {
			composeLog.Infof("no previous full backup for %s, falling back to full", req.Host)
			strategy = TypeFull
		} else if req.StartFrom == "" {
			baseline = last.Path
		}
	default:
		return Job{}, fmt.Errorf("unknown backup mode: %s", req.Mode)
	}

	if err := c.Catalog.Set(id, FieldHost, req.Host); err != nil {
		return Job{}, err
	}
	if err := c.Catalog.Set(id, FieldOS, string(req.OS)); err != nil {
		return Job{}, err
	}
	if err := c.Catalog.Set(id, FieldType, string(strategy)); err != nil {
		return Job{}, err
	}

	var copySource string
	if req.StartFrom != "" {
		rec, err := c.Catalog.Lookup(req.StartFrom)
		if err != nil {
			return Job{}, fmt.Errorf("start-from: %w", err)
		}
		if _, err := os.Stat(rec.Path); err != nil {
			composeLog.Warnf("start-from backup folder %s does not exist, ignoring baseline", rec.Path)
		} else {
			copySource = rec.Path
		}
	}

	sources, err := SourceList(req.OS, req.Data, req.CustomData)
	if err != nil {
		return Job{}, err
	}

	destination, err := c.composeDestination(req.Host, strategy)
	if err != nil {
		return Job{}, err
	}
	if err := c.Catalog.Set(id, FieldPath, destination); err != nil {
		return Job{}, err
	}
	if err := c.Catalog.SetTime(id, FieldTimestamp, time.Now()); err != nil {
		return Job{}, err
	}

	var logPath string
	if req.EnableLog {
		logPath = filepath.Join(c.Catalog.Root(), req.Host, "backup.log")
	}

	args := c.Transfer.BackupArgs(strategy, baseline, copySource, logPath)
	args = append(args, remoteSources(req.User, req.Host, sources)...)
	args = append(args, destination)

	if strategy != TypeMirror && !c.Catalog.DryRun() {
		MakeSymlink(destination, filepath.Join(c.Catalog.Root(), req.Host, LastBackupLinkName))
	}

	return Job{ID: id, Host: req.Host, Args: args, LogPath: logPath}, nil
}

// SourceList maps the requested categories (or custom paths) to the source
// roots of the backup. The system category always means everything and
// discards any other selection.
func SourceList(osFamily OSFamily, data []Category, customData []string) ([]string, error) {
	if len(customData) > 0 {
		sources := make([]string, 0, len(customData))
		for _, p := range customData {
			sources = append(sources, QuoteRemotePath(p))
		}
		return sources, nil
	}

	folders, err := Folders(osFamily)
	if err != nil {
		return nil, err
	}

	for _, category := range data {
		if category == CategorySystem {
			return []string{folders[CategorySystem]}, nil
		}
	}

	var sources []string
	for _, category := range []Category{CategoryUser, CategoryConfig, CategoryApplication, CategoryLog} {
		for _, requested := range data {
			if requested == category {
				sources = append(sources, folders[category])
			}
		}
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("empty source selection")
	}
	return sources, nil
}

// remoteSources turns source roots into transfer-tool source arguments. For
// a remote host the first source carries the user@host prefix and the
// following ones are same-host shorthands; local sources are plain paths.
func remoteSources(user, host string, sources []string) []string {
	if IsLocalHost(host) {
		return sources
	}

	args := make([]string, 0, len(sources))
	for i, src := range sources {
		if i == 0 {
			args = append(args, fmt.Sprintf("%s@%s:%s", user, host, src))
		} else {
			args = append(args, ":"+src)
		}
	}
	return args
}

func (c *Composer) composeDestination(host string, strategy BackupType) (string, error) {
	firstLayer := filepath.Join(c.Catalog.Root(), host)

	var secondLayer string
	if strategy == TypeMirror {
		secondLayer = filepath.Join(firstLayer, MirrorFolderName)
	} else {
		secondLayer = filepath.Join(firstLayer, time.Now().Format(FolderTimeFormat))
	}

	for _, layer := range []string{firstLayer, secondLayer} {
		if _, err := os.Stat(layer); os.IsNotExist(err) {
			if !c.Catalog.DryRun() {
				if err := os.Mkdir(layer, 0o755); err != nil {
					return "", err
				}
			}
			composeLog.Infof("created folder %s", layer)
		}
	}

	return secondLayer, nil
}

// LastBackup returns the host's most recent record that is neither cleaned
// nor archived, of any type, or nil.
func LastBackup(c *Catalog, host string) *Record {
	return lastMatching(c, host, func(r *Record) bool { return true })
}

// LastFull returns the host's most recent full record that is neither
// cleaned nor archived, or nil.
func LastFull(c *Catalog, host string) *Record {
	return lastMatching(c, host, func(r *Record) bool { return r.Type == TypeFull })
}

func lastMirror(c *Catalog, host string) *Record {
	return lastMatching(c, host, func(r *Record) bool { return r.Type == TypeMirror })
}

func lastMatching(c *Catalog, host string, match func(*Record) bool) *Record {
	var last *Record
	for _, rec := range c.Records() {
		if rec.Host != host || rec.Retired() || !match(&rec) {
			continue
		}
		if last == nil || rec.Timestamp.After(last.Timestamp) {
			r := rec
			last = &r
		}
	}
	return last
}

package fleetback

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RestoreRequest is a validated request to restore one snapshot onto a host.
type RestoreRequest struct {
	Host string
	User string

	// OS is the restore target's family; empty means the family recorded at
	// backup time.
	OS OSFamily

	// ID selects the snapshot; Last selects the host's most recent one
	// instead.
	ID   string
	Last bool

	// RootDir overrides the generated destination of custom-data folders.
	RootDir string

	Mirror    bool
	EnableLog bool
}

// PlanRestoreJobs resolves the snapshot to restore and maps each of its
// top-level folders to the equivalent root on the restore operating system,
// producing one transfer job per folder. Jobs carry no record id: restores
// never mutate the catalog.
func PlanRestoreJobs(c *Catalog, t *Transfer, req RestoreRequest) ([]Job, error) {
	var rec Record
	if req.Last {
		last := LastBackup(c, req.Host)
		if last == nil {
			return nil, fmt.Errorf("no backup found for host %s", req.Host)
		}
		rec = *last
	} else {
		var err error
		rec, err = c.Lookup(req.ID)
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(rec.Path); err != nil {
		return nil, fmt.Errorf("backup folder %s does not exist", rec.Path)
	}

	restoreOS := req.OS
	if restoreOS == "" {
		restoreOS = rec.OS
	}

	var logPath string
	if req.EnableLog {
		logPath = filepath.Join(filepath.Dir(rec.Path), "restore.log")
	}

	entries, err := os.ReadDir(rec.Path)
	if err != nil {
		return nil, err
	}

	var jobs []Job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		target, err := PlanRestore(rec.OS, restoreOS, entry.Name(), req.RootDir)
		if err != nil {
			return nil, err
		}

		args := t.RestoreArgs(req.Mirror, logPath)
		if restoreOS == OSWindows {
			// The restored tree must stay usable by any local user.
			args = append(args, "--chmod=ugo=rwX")
		}
		// filepath.Join would strip the content-selecting trailing slash.
		args = append(args, strings.TrimRight(rec.Path, "/")+"/"+target.Source)

		if IsLocalHost(req.Host) {
			args = append(args, target.Destination)
		} else {
			args = append(args, fmt.Sprintf("%s@%s:%s", req.User, req.Host, target.Destination))
		}

		jobs = append(jobs, Job{Host: req.Host, Args: args, LogPath: logPath})
	}

	return jobs, nil
}

package fleetback

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Transfer holds the settings used to assemble invocations of the external
// file-synchronization tool. The tool is an opaque collaborator: fleetback
// only builds its argument vector and consumes its exit code.
type Transfer struct {
	// Command is the tool binary, possibly with a wrapper ("sudo rsync").
	Command []string

	Compress   bool
	BwLimit    int // KB/s, 0 means unlimited
	Timeout    int // I/O timeout in seconds, passed through to the tool
	SSHPort    int
	SkipErrors bool
	Verbose    bool
	DryRun     bool
	Exclude    []string
	Include    []string
}

// TransferFromOptions builds transfer settings from evaluated options, as
// gathered from presets and option strings.
func TransferFromOptions(o *Options) (*Transfer, error) {
	t := &Transfer{
		Command: o.GetCommand("Command", []string{"rsync"}),
		Exclude: o.StrSlice["Exclude"],
		Include: o.StrSlice["Include"],
	}

	var err error
	if t.Compress, err = o.GetBoolean("Compress", false); err != nil {
		return nil, err
	}
	if t.BwLimit, err = o.GetInt("BwLimit", 0); err != nil {
		return nil, err
	}
	if t.Timeout, err = o.GetInt("Timeout", 0); err != nil {
		return nil, err
	}
	if t.SSHPort, err = o.GetInt("SSHPort", 0); err != nil {
		return nil, err
	}

	return t, nil
}

// SetToolPath overrides the tool binary. A path that does not exist falls
// back to the default, with a warning.
func (t *Transfer) SetToolPath(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		logrus.Warnf("tool binary %s does not exist, using default", path)
		return
	}
	t.Command = []string{path}
}

func (t *Transfer) commonArgs() []string {
	var args []string
	if t.Verbose {
		args = append(args, "-vP")
	}
	if t.SkipErrors {
		args = append(args, "--quiet")
	}
	if t.BwLimit > 0 {
		args = append(args, fmt.Sprintf("--bwlimit=%d", t.BwLimit))
	}
	if t.SSHPort > 0 {
		args = append(args, "--rsh", fmt.Sprintf("ssh -p %d", t.SSHPort))
	}
	if t.Timeout > 0 {
		args = append(args, fmt.Sprintf("--timeout=%d", t.Timeout))
	}
	if t.DryRun {
		args = append(args, "--dry-run")
	}
	for _, e := range t.Exclude {
		args = append(args, "--exclude="+e)
	}
	return args
}

// BackupArgs assembles the argument vector of a backup transfer. baseline
// and copySource are snapshot paths for hard-link and copy reuse; either
// may be empty.
func (t *Transfer) BackupArgs(strategy BackupType, baseline, copySource, logFile string) []string {
	args := append([]string{}, t.Command...)

	switch strategy {
	case TypeFull:
		args = append(args, "-ah", "--no-links")
	case TypeIncremental, TypeDifferential:
		args = append(args, "-ahu", "--no-links")
		if baseline != "" {
			args = append(args, "--link-dest="+baseline)
		}
	case TypeMirror:
		args = append(args, "-ah", "--delete")
	}

	if copySource != "" {
		args = append(args, "--copy-dest="+copySource)
	}
	if t.Compress {
		args = append(args, "-z")
	}

	args = append(args, t.commonArgs()...)

	if logFile != "" {
		args = append(args, "--log-file="+logFile)
	}
	return args
}

// RestoreArgs assembles the argument vector of a restore transfer.
// Ownership and permissions are not reapplied on the restore target.
func (t *Transfer) RestoreArgs(mirror bool, logFile string) []string {
	args := append([]string{}, t.Command...)
	args = append(args, "-ahu", "--no-perms", "--no-owner", "--no-group")
	if mirror {
		args = append(args, "--delete", "--ignore-times")
	}
	args = append(args, t.commonArgs()...)
	if logFile != "" {
		args = append(args, "--log-file="+logFile)
	}
	return args
}

// ExportArgs assembles the argument vector of an export transfer.
func (t *Transfer) ExportArgs(mirror, cut, safeLinks bool, logFile string) []string {
	args := append([]string{}, t.Command...)
	args = append(args, "-ahu", "--no-perms", "--no-owner", "--no-group")
	if mirror {
		args = append(args, "--delete", "--ignore-times")
	}
	if cut {
		args = append(args, "--remove-source-files")
	}
	if len(t.Include) > 0 {
		for _, i := range t.Include {
			args = append(args, "--include="+i)
		}
		args = append(args, "--exclude=*")
	}
	if safeLinks {
		args = append(args, "--safe-links")
	}
	args = append(args, t.commonArgs()...)
	if logFile != "" {
		args = append(args, "--log-file="+logFile)
	}
	return args
}

// QuoteRemotePath quotes a path for the remote shell that the transfer tool
// spawns on the far side. Plain paths pass through untouched.
func QuoteRemotePath(p string) string {
	if !strings.ContainsAny(p, " \t'\"\\$`&;()<>|*?[]#~") {
		return p
	}
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}

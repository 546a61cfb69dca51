package fleetback

import (
	"errors"
	"fmt"
	"path"
	"time"
)

// Category is a logical class of host data mapped to an OS-specific root.
type Category string

const (
	CategoryUser        Category = "user"
	CategoryConfig      Category = "config"
	CategoryApplication Category = "application"
	CategorySystem      Category = "system"
	CategoryLog         Category = "log"
)

var ErrUnknownOSFamily = errors.New("unknown operating system family")

var unixFolders = map[Category]string{
	CategoryUser:        "/home",
	CategoryConfig:      "/etc",
	CategoryApplication: "/usr",
	CategorySystem:      "/",
	CategoryLog:         "/var/log",
}

// Windows hosts are reached through a Cygwin-provided rsync, hence the
// /cygdrive paths. The Program Files root is pre-quoted because of its space.
var windowsFolders = map[Category]string{
	CategoryUser:        "/cygdrive/c/Users",
	CategoryConfig:      "/cygdrive/c/ProgramData",
	CategoryApplication: `'/cygdrive/c/Program\ Files'`,
	CategorySystem:      "/cygdrive/c",
	CategoryLog:         "/cygdrive/c/Windows/System32/winevt",
}

var macosFolders = map[Category]string{
	CategoryUser:        "/Users",
	CategoryConfig:      "/private/etc",
	CategoryApplication: "/Applications",
	CategorySystem:      "/",
	CategoryLog:         "/private/var/log",
}

// ParseCategory normalizes a data category name.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryUser, CategoryConfig, CategoryApplication, CategorySystem, CategoryLog:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown data category: %s", s)
}

// Folders maps every data category to its filesystem root on the given
// operating system family.
func Folders(os OSFamily) (map[Category]string, error) {
	switch os {
	case OSUnix:
		return unixFolders, nil
	case OSWindows:
		return windowsFolders, nil
	case OSMacOS:
		return macosFolders, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOSFamily, os)
}

// RestoreTarget is one source-to-destination mapping of a restore plan.
// Source is relative to the snapshot folder; a trailing slash restores the
// folder content instead of the folder itself.
type RestoreTarget struct {
	Source      string
	Destination string
}

// PlanRestore routes one top-level snapshot folder to its equivalent root
// on the restore operating system. A folder captured from a known taxonomy
// root maps to the same category's root on the restore OS (cross-OS
// translation); anything else is custom data and goes to the override root,
// or to a generated restore_<timestamp> folder under the restore-OS system
// root when no override is given.
func PlanRestore(backupOS, restoreOS OSFamily, entry, override string) (RestoreTarget, error) {
	bFolders, err := Folders(backupOS)
	if err != nil {
		return RestoreTarget{}, err
	}
	rFolders, err := Folders(restoreOS)
	if err != nil {
		return RestoreTarget{}, err
	}

	for category, root := range bFolders {
		if category == CategorySystem {
			// The system root has no stable basename and subsumes every
			// other category; it never matches a single snapshot folder.
			continue
		}
		if entry == path.Base(root) {
			return RestoreTarget{
				Source:      entry + "/",
				Destination: rFolders[category],
			}, nil
		}
	}

	dst := override
	if dst == "" {
		dst = path.Join(rFolders[CategorySystem], "restore_"+time.Now().Format(FolderTimeFormat))
	}
	return RestoreTarget{Source: entry, Destination: dst}, nil
}

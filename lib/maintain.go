package fleetback

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

var maintainLog = logrus.WithFields(logrus.Fields{
	"component": "catalog",
})

// InitCatalog drops every record whose snapshot folder no longer exists,
// resynchronizing the catalog with the storage underneath it.
func InitCatalog(c *Catalog) error {
	for _, rec := range c.Records() {
		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			maintainLog.Infof("backup %s removed from catalog", rec.ShortID())
			if err := c.Remove(rec.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteHost deletes every backup of a host, both the stored data and the
// catalog records, then removes the host folder itself.
func DeleteHost(c *Catalog, host string) error {
	for _, rec := range c.Records() {
		if rec.Host != host {
			continue
		}
		if _, err := os.Stat(rec.Path); err == nil {
			if c.DryRun() {
				maintainLog.Infof("dry-run: would delete %s", rec.Path)
				continue
			}
			if err := os.RemoveAll(rec.Path); err != nil {
				maintainLog.Errorf("cannot delete %s: %v", rec.Path, err)
				continue
			}
			maintainLog.Infof("deleted %s", rec.Path)
		}
		if err := c.Remove(rec.ID); err != nil {
			return err
		}
		maintainLog.Infof("backup %s removed from catalog", rec.ShortID())
	}

	if c.DryRun() {
		return nil
	}
	return os.RemoveAll(filepath.Join(c.Root(), host))
}

// RepairCatalog rewrites corrupt records with safe defaults, so partially
// written entries do not wedge later runs. Records without a path cannot be
// repaired and are dropped.
func RepairCatalog(c *Catalog) error {
	now := time.Now()
	for _, rec := range c.Records() {
		if rec.Path == "" {
			maintainLog.Warnf("record %s has no path, dropping it", rec.ShortID())
			if err := c.Remove(rec.ID); err != nil {
				return err
			}
			continue
		}

		repaired := false
		set := func(key, value string) {
			if err := c.Set(rec.ID, key, value); err != nil {
				maintainLog.Errorf("cannot repair %s: %v", rec.ShortID(), err)
				return
			}
			repaired = true
		}

		if rec.Type == "" {
			set(FieldType, string(TypeIncremental))
		}
		if rec.Host == "" {
			set(FieldHost, "default")
		}
		if rec.OS == "" {
			set(FieldOS, string(OSUnix))
		}
		if rec.Timestamp.IsZero() {
			set(FieldTimestamp, now.Format(TimeFormat))
		}
		if rec.Start == nil {
			set(FieldStart, now.Format(TimeFormat))
		}
		if rec.End == nil {
			set(FieldEnd, now.Format(TimeFormat))
		}
		if rec.Status == nil {
			set(FieldStatus, strconv.Itoa(0))
		}

		if repaired {
			maintainLog.Warnf("record %s was corrupt and has been reset to defaults, check it", rec.ShortID())
		}
	}
	return nil
}

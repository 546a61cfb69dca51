package fleetback

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var retentionLog = logrus.WithFields(logrus.Fields{
	"component": "retention",
})

// RetentionPolicy is the per-host cleanup policy: snapshots older than Days
// days are deleted from primary storage, but the most recent MinCount
// backups of the host are always preserved regardless of age.
type RetentionPolicy struct {
	Days     int
	MinCount int
}

// ParseRetention parses the one- or two-integer form of the --retention
// flag (days, then an optional minimum backup count).
func ParseRetention(values []int) (RetentionPolicy, error) {
	switch len(values) {
	case 1:
		if values[0] < 0 {
			return RetentionPolicy{}, fmt.Errorf("invalid retention days: %d", values[0])
		}
		return RetentionPolicy{Days: values[0]}, nil
	case 2:
		if values[0] < 0 || values[1] < 0 {
			return RetentionPolicy{}, fmt.Errorf("invalid retention parameters: %v", values)
		}
		return RetentionPolicy{Days: values[0], MinCount: values[1]}, nil
	}
	return RetentionPolicy{}, fmt.Errorf("retention takes one or two integers, got %d", len(values))
}

func (p RetentionPolicy) String() string {
	return strconv.Itoa(p.Days) + "d/" + strconv.Itoa(p.MinCount)
}

// CountChainAnchors counts the host's records able to anchor a backup chain:
// full and incremental records whose data is still on primary storage.
func CountChainAnchors(c *Catalog, host string) int {
	count := 0
	for _, rec := range c.Records() {
		if rec.Host == host && rec.IsChainAnchor() && !rec.Retired() {
			count++
		}
	}
	return count
}

// ApplyRetention deletes the host's expired snapshots from primary storage
// and marks their records cleaned. The most recent MinCount records are
// exempt regardless of age, and the sole surviving chain anchor of the host
// is never deleted. Mirror records have no age, their destination is
// perpetually current. Storage failures are logged and leave the record
// untouched for the next run.
func ApplyRetention(c *Catalog, host string, policy RetentionPolicy) error {
	anchors := CountChainAnchors(c, host)

	exempt := make(map[string]struct{})
	if policy.MinCount > 0 {
		ids := c.ListByHost(host)
		if len(ids) > policy.MinCount {
			ids = ids[len(ids)-policy.MinCount:]
		}
		for _, id := range ids {
			exempt[id] = struct{}{}
		}
	}

	cutoff := time.Now().AddDate(0, 0, -policy.Days)

	for _, rec := range c.Records() {
		if rec.Host != host || rec.Retired() {
			continue
		}
		log := retentionLog.WithFields(logrus.Fields{"host": host, "id": rec.ShortID()})

		if _, ok := exempt[rec.ID]; ok {
			log.Debugf("preserved by minimum backup count")
			continue
		}
		if rec.IsChainAnchor() && anchors <= 1 {
			log.Debugf("sole chain anchor, never deleted")
			continue
		}
		if rec.Type == TypeMirror {
			log.Debugf("mirror destination is perpetually current, skipping")
			continue
		}
		if !rec.Timestamp.Before(cutoff) {
			log.Debugf("not expired, skipping")
			continue
		}

		log.Infof("cleaning up backup folder %s", rec.Path)
		if c.DryRun() {
			continue
		}

		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			log.Debugf("folder %s already gone, marking cleaned", rec.Path)
		} else if err := os.RemoveAll(rec.Path); err != nil {
			log.Errorf("cleanup of %s failed: %v", rec.Path, err)
			continue
		}

		if err := c.Set(rec.ID, FieldCleaned, "true"); err != nil {
			return err
		}
		removeLastBackupLink(c.Root(), host, rec.Path)
		log.Infof("cleanup of %s successful", rec.Path)
	}

	return nil
}

// removeLastBackupLink drops the host's last_backup convenience link when it
// points at a deleted snapshot.
func removeLastBackupLink(root, host, target string) {
	link := filepath.Join(root, host, LastBackupLinkName)
	dest, err := os.Readlink(link)
	if err != nil {
		return
	}
	if strings.TrimRight(dest, "/") == strings.TrimRight(target, "/") {
		_ = os.Remove(link)
	}
}

package fleetback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/sirupsen/logrus"
)

// CatalogFileName is the name of the catalog file inside a backup root.
const CatalogFileName = ".catalog.cfg"

// Catalog field keys. The on-disk format is one section per backup id.
const (
	FieldHost      = "name"
	FieldOS        = "os"
	FieldType      = "type"
	FieldPath      = "path"
	FieldTimestamp = "timestamp"
	FieldStart     = "start"
	FieldEnd       = "end"
	FieldStatus    = "status"
	FieldCleaned   = "cleaned"
	FieldArchived  = "archived"
)

var (
	ErrCatalogDirMissing = errors.New("catalog: containing directory does not exist")
	ErrUnknownBackupID   = errors.New("catalog: unknown backup id")
	ErrAmbiguousBackupID = errors.New("catalog: ambiguous short backup id")

	catalogLog = logrus.WithFields(logrus.Fields{
		"component": "catalog",
	})
)

// Catalog is the persisted set of backup records for one backup root.
// Every mutation rewrites the whole file atomically (write to a temporary
// file, then rename); concurrent external readers never observe a partial
// write. Mutation is expected to happen from a single controlling
// goroutine, the scheduler workers never touch the catalog.
type Catalog struct {
	root   string
	path   string
	file   *ini.File
	dryRun bool
}

// ReadCatalog loads the catalog of a backup root, creating an empty catalog
// file if the root directory exists but the catalog does not.
func ReadCatalog(root string) (*Catalog, error) {
	st, err := os.Stat(root)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCatalogDirMissing, root)
	}

	path := filepath.Join(root, CatalogFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		catalogLog.Debugf("catalog not found, creating a new one: %s", path)
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, err
		}
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read catalog %s: %w", path, err)
	}

	return &Catalog{root: root, path: path, file: file}, nil
}

// Root returns the backup root directory this catalog describes.
func (c *Catalog) Root() string {
	return c.root
}

// Path returns the location of the catalog file.
func (c *Catalog) Path() string {
	return c.path
}

// SetDryRun suppresses all catalog mutation; Set and Remove become no-ops
// that only narrate what they would have written.
func (c *Catalog) SetDryRun(dryRun bool) {
	c.dryRun = dryRun
}

// DryRun reports whether catalog mutation is suppressed.
func (c *Catalog) DryRun() bool {
	return c.dryRun
}

// Set upserts a single field of a single record and rewrites the catalog.
func (c *Catalog) Set(id, key, value string) error {
	if c.dryRun {
		catalogLog.Infof("dry-run: would set %s.%s = %s", id, key, value)
		return nil
	}

	c.file.Section(id).Key(key).SetValue(value)
	return c.save()
}

// SetTime stores a timestamp field in the catalog time format.
func (c *Catalog) SetTime(id, key string, t time.Time) error {
	return c.Set(id, key, t.Format(TimeFormat))
}

// Remove deletes a record from the catalog.
func (c *Catalog) Remove(id string) error {
	if c.dryRun {
		catalogLog.Infof("dry-run: would remove record %s", id)
		return nil
	}

	c.file.DeleteSection(id)
	return c.save()
}

// Record returns the record stored under the exact given id.
func (c *Catalog) Record(id string) (Record, error) {
	if id == "" || !c.file.HasSection(id) {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownBackupID, id)
	}
	sec, err := c.file.GetSection(id)
	if err != nil {
		return Record{}, err
	}
	return recordFromSection(sec), nil
}

// Lookup resolves either a full backup id or an unambiguous 8-character
// short id to its record.
func (c *Catalog) Lookup(idOrPrefix string) (Record, error) {
	if len(idOrPrefix) == ShortIDLength {
		var found []string
		for _, name := range c.file.SectionStrings() {
			if name == ini.DefaultSection {
				continue
			}
			if strings.HasPrefix(name, idOrPrefix) {
				found = append(found, name)
			}
		}
		switch {
		case len(found) == 1:
			return c.Record(found[0])
		case len(found) > 1:
			return Record{}, fmt.Errorf("%w: %s", ErrAmbiguousBackupID, idOrPrefix)
		}
	}

	return c.Record(idOrPrefix)
}

// ListByHost returns the ids of every record of a host, in catalog
// (insertion) order. Ids are time-ordered, so this is also creation order.
func (c *Catalog) ListByHost(host string) []string {
	var ids []string
	for _, sec := range c.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		if sec.Key(FieldHost).String() == host {
			ids = append(ids, sec.Name())
		}
	}
	return ids
}

// Records returns every record in catalog order.
func (c *Catalog) Records() []Record {
	var records []Record
	for _, sec := range c.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		records = append(records, recordFromSection(sec))
	}
	return records
}

func (c *Catalog) save() error {
	tmp := c.path + ".tmp"
	if err := c.file.SaveTo(tmp); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func recordFromSection(sec *ini.Section) Record {
	r := Record{
		ID:   sec.Name(),
		Host: sec.Key(FieldHost).String(),
		Path: sec.Key(FieldPath).String(),
	}

	if osName, err := ParseOSFamily(sec.Key(FieldOS).String()); err == nil {
		r.OS = osName
	}
	if typ, err := ParseBackupType(sec.Key(FieldType).String()); err == nil {
		r.Type = typ
	}
	if t, err := time.ParseInLocation(TimeFormat, sec.Key(FieldTimestamp).String(), time.Local); err == nil {
		r.Timestamp = t
	}
	if sec.HasKey(FieldStart) {
		if t, err := time.ParseInLocation(TimeFormat, sec.Key(FieldStart).String(), time.Local); err == nil {
			r.Start = &t
		}
	}
	if sec.HasKey(FieldEnd) {
		if t, err := time.ParseInLocation(TimeFormat, sec.Key(FieldEnd).String(), time.Local); err == nil {
			r.End = &t
		}
	}
	if sec.HasKey(FieldStatus) {
		if status, err := strconv.Atoi(sec.Key(FieldStatus).String()); err == nil {
			r.Status = &status
		}
	}
	if sec.HasKey(FieldCleaned) {
		r.Cleaned, _ = strconv.ParseBool(sec.Key(FieldCleaned).String())
	}
	if sec.HasKey(FieldArchived) {
		r.Archived, _ = strconv.ParseBool(sec.Key(FieldArchived).String())
	}

	return r
}

package fleetback

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

// ArchiveSuffix is the extension of produced archive files.
const ArchiveSuffix = ".tar.zst"

var archiveLog = logrus.WithFields(logrus.Fields{
	"component": "archive",
})

// ApplyArchive compresses expired, non-deleted snapshot folders of every
// host in the catalog into the destination store (one subfolder per host)
// and removes the sources. A host's last remaining full backup is never
// archived, and cleaned records are never archived (mutual exclusion with
// retention). Failures are logged and the record is left unmarked, so the
// next invocation retries it.
func ApplyArchive(c *Catalog, days int, destination string, uploader *Uploader) error {
	if st, err := os.Stat(destination); err != nil || !st.IsDir() {
		return fmt.Errorf("archive destination does not exist: %s", destination)
	}

	cutoff := time.Now().AddDate(0, 0, -days)

	for _, rec := range c.Records() {
		if rec.Retired() {
			continue
		}
		log := archiveLog.WithFields(logrus.Fields{"host": rec.Host, "id": rec.ShortID()})

		if rec.Type == TypeFull && CountChainAnchors(c, rec.Host) <= 1 {
			log.Debugf("last remaining full backup, never archived")
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

		archiveFile := filepath.Join(destination, rec.Host, filepath.Base(rec.Path)+ArchiveSuffix)
		log.Infof("archiving backup folder %s to %s", rec.Path, archiveFile)
		if c.DryRun() {
			continue
		}

		if _, err := os.Stat(rec.Path); err != nil {
			log.Errorf("backup folder %s does not exist", rec.Path)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(archiveFile), 0o755); err != nil {
			log.Errorf("cannot create archive folder: %v", err)
			continue
		}

		if err := CompressFolder(rec.Path, archiveFile); err != nil {
			log.Errorf("archiving of %s failed: %v", rec.Path, err)
			_ = os.Remove(archiveFile)
			continue
		}

		if uploader != nil {
			object := rec.Host + "/" + filepath.Base(archiveFile)
			if err := uploader.Upload(context.Background(), archiveFile, object); err != nil {
				log.Warnf("cannot upload archive %s: %v", archiveFile, err)
			} else {
				log.Infof("uploaded archive as %s", object)
			}
		}

		if err := os.RemoveAll(rec.Path); err != nil {
			log.Errorf("cannot delete archived source %s: %v", rec.Path, err)
			continue
		}
		if err := c.Set(rec.ID, FieldArchived, "true"); err != nil {
			return err
		}
		removeLastBackupLink(c.Root(), rec.Host, rec.Path)
		log.Infof("archiving of %s successful", rec.Path)
	}

	return nil
}

// CompressFolder writes the given folder into a zstd-compressed tarball.
// Entries are named relative to the folder's parent, so extraction
// recreates the folder itself.
func CompressFolder(src, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)

	base := filepath.Base(src)
	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		name := base
		if rel != "." {
			name = filepath.Join(base, rel)
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(name)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

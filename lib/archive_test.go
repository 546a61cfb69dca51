package fleetback

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestCompressFolder(t *testing.T) {
	src := filepath.Join(t.TempDir(), "2026_03_14__15_09")
	if err := os.MkdirAll(filepath.Join(src, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "etc", "hosts"), []byte("127.0.0.1 localhost\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("hosts", filepath.Join(src, "etc", "hosts.link")); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "snapshot"+ArchiveSuffix)
	if err := CompressFolder(src, dest); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	entries := map[string]string{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		var content []byte
		if hdr.Typeflag == tar.TypeReg {
			if content, err = io.ReadAll(tr); err != nil {
				t.Fatal(err)
			}
		}
		entries[hdr.Name] = string(content)
	}

	// Names must be rooted at the snapshot folder so extraction recreates it.
	if entries["2026_03_14__15_09/etc/hosts"] != "127.0.0.1 localhost\n" {
		t.Errorf("unexpected archive content: %v", entries)
	}
	if _, ok := entries["2026_03_14__15_09/etc/hosts.link"]; !ok {
		t.Errorf("symlinks must be preserved: %v", entries)
	}
}

func TestApplyArchive(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := t.TempDir()

	oldFull := makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 60)
	oldIncr := makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental, 45)
	fresh := makeSnapshot(t, c, "c8tqs2hgp4mfbcl00003", "web01", TypeIncremental, 1)

	if err := ApplyArchive(c, 30, store, nil); err != nil {
		t.Fatal(err)
	}

	// The expired full and incremental move into the store, the fresh one
	// stays put.
	for _, test := range []struct {
		id       string
		path     string
		archived bool
	}{
		{"c8tqs2hep4mfbcl00001", oldFull, true},
		{"c8tqs2hfp4mfbcl00002", oldIncr, true},
		{"c8tqs2hgp4mfbcl00003", fresh, false},
	} {
		rec, _ := c.Record(test.id)
		if rec.Archived != test.archived {
			t.Errorf("%s: expected archived=%v", test.id, test.archived)
		}
		if _, err := os.Stat(test.path); test.archived != os.IsNotExist(err) {
			t.Errorf("%s: source folder state does not match the record", test.id)
		}
		archiveFile := filepath.Join(store, "web01", filepath.Base(test.path)+ArchiveSuffix)
		if _, err := os.Stat(archiveFile); test.archived == os.IsNotExist(err) {
			t.Errorf("%s: archive file state does not match the record", test.id)
		}
	}
}

func TestApplyArchiveKeepsLastFull(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := t.TempDir()

	// The only chain anchor of the host is never moved off primary storage,
	// however old it is.
	path := makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 365)

	if err := ApplyArchive(c, 30, store, nil); err != nil {
		t.Fatal(err)
	}

	rec, _ := c.Record("c8tqs2hep4mfbcl00001")
	if rec.Archived {
		t.Errorf("the last full backup must never be archived")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("the last full backup folder must stay: %v", err)
	}
}

func TestApplyArchiveSkipsCleaned(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := t.TempDir()

	makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental, 60)
	if err := c.Set("c8tqs2hfp4mfbcl00002", FieldCleaned, "true"); err != nil {
		t.Fatal(err)
	}

	if err := ApplyArchive(c, 30, store, nil); err != nil {
		t.Fatal(err)
	}

	rec, _ := c.Record("c8tqs2hfp4mfbcl00002")
	if rec.Archived {
		t.Errorf("cleaned records are out of the archiver's reach")
	}
}

func TestApplyArchiveMissingDestination(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := ApplyArchive(c, 30, filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Errorf("a missing archive destination is a configuration error")
	}
}

func TestApplyArchiveDryRun(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := t.TempDir()

	makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	expired := makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental, 60)
	c.SetDryRun(true)

	if err := ApplyArchive(c, 30, store, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(expired); err != nil {
		t.Errorf("dry-run must not move anything: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store, "web01", filepath.Base(expired)+ArchiveSuffix)); !os.IsNotExist(err) {
		t.Errorf("dry-run must not produce archives")
	}
}

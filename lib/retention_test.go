package fleetback

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseRetention(t *testing.T) {
	tests := []struct {
		values []int
		result RetentionPolicy
	}{
		{values: []int{7}, result: RetentionPolicy{Days: 7}},
		{values: []int{7, 3}, result: RetentionPolicy{Days: 7, MinCount: 3}},
		{values: []int{0}, result: RetentionPolicy{Days: 0}},
	}

	for _, test := range tests {
		result, err := ParseRetention(test.values)
		if err != nil || result != test.result {
			t.Errorf("does not match: %v %v (from %v, err %v)", test.result, result, test.values, err)
		}
	}

	for _, values := range [][]int{{}, {1, 2, 3}, {-1}, {7, -1}} {
		if _, err := ParseRetention(values); err == nil {
			t.Errorf("expected an error for %v", values)
		}
	}
}

// makeSnapshot registers a record with a real folder behind it.
func makeSnapshot(t *testing.T, c *Catalog, id, host string, typ BackupType, ageDays int) string {
	t.Helper()
	path := filepath.Join(c.Root(), host, id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "payload"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	addRecord(t, c, id, host, typ, path, time.Now().AddDate(0, 0, -ageDays))
	return path
}

func TestApplyRetention(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// Ten days of history: one full and two incrementals, cleaned with a
	// 7-day policy that always preserves the 2 most recent backups.
	full := makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 10)
	incr1 := makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental, 9)
	incr2 := makeSnapshot(t, c, "c8tqs2hgp4mfbcl00003", "web01", TypeIncremental, 8)

	if err := ApplyRetention(c, "web01", RetentionPolicy{Days: 7, MinCount: 2}); err != nil {
		t.Fatal(err)
	}

	// Only the oldest record falls: the two most recent are exempt by count.
	rec, _ := c.Record("c8tqs2hep4mfbcl00001")
	if !rec.Cleaned {
		t.Errorf("expired full must be cleaned")
	}
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Errorf("cleaned folder must be deleted")
	}

	for _, id := range []string{"c8tqs2hfp4mfbcl00002", "c8tqs2hgp4mfbcl00003"} {
		rec, _ := c.Record(id)
		if rec.Cleaned {
			t.Errorf("%s: preserved by minimum count, must survive", id)
		}
	}
	if _, err := os.Stat(incr1); err != nil {
		t.Errorf("preserved folder must stay: %v", err)
	}
	if _, err := os.Stat(incr2); err != nil {
		t.Errorf("preserved folder must stay: %v", err)
	}
}

func TestApplyRetentionSoleAnchor(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// Even a zero-day policy never deletes the host's only chain anchor.
	makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 100)

	if err := ApplyRetention(c, "web01", RetentionPolicy{Days: 0}); err != nil {
		t.Fatal(err)
	}

	rec, _ := c.Record("c8tqs2hep4mfbcl00001")
	if rec.Cleaned {
		t.Errorf("the sole chain anchor must never be deleted")
	}
}

func TestApplyRetentionSkipsMirror(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeFull, 1)
	mirror := makeSnapshot(t, c, "c8tqs2hgp4mfbcl00003", "web01", TypeMirror, 100)

	if err := ApplyRetention(c, "web01", RetentionPolicy{Days: 7}); err != nil {
		t.Fatal(err)
	}

	rec, _ := c.Record("c8tqs2hgp4mfbcl00003")
	if rec.Cleaned {
		t.Errorf("mirror records have no age and must never be cleaned")
	}
	if _, err := os.Stat(mirror); err != nil {
		t.Errorf("mirror folder must stay: %v", err)
	}
}

func TestApplyRetentionSkipsArchived(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental, 100)
	if err := c.Set("c8tqs2hfp4mfbcl00002", FieldArchived, "true"); err != nil {
		t.Fatal(err)
	}

	if err := ApplyRetention(c, "web01", RetentionPolicy{Days: 7}); err != nil {
		t.Fatal(err)
	}

	rec, _ := c.Record("c8tqs2hfp4mfbcl00002")
	if rec.Cleaned {
		t.Errorf("archived records are out of retention's reach")
	}
}

func TestApplyRetentionDryRun(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	expired := makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental, 100)
	c.SetDryRun(true)

	if err := ApplyRetention(c, "web01", RetentionPolicy{Days: 7}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(expired); err != nil {
		t.Errorf("dry-run must not delete anything: %v", err)
	}
}

func TestApplyRetentionMissingFolder(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	addRecord(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental,
		filepath.Join(c.Root(), "web01", "vanished"), time.Now().AddDate(0, 0, -100))

	if err := ApplyRetention(c, "web01", RetentionPolicy{Days: 7}); err != nil {
		t.Fatal(err)
	}

	rec, _ := c.Record("c8tqs2hfp4mfbcl00002")
	if !rec.Cleaned {
		t.Errorf("a record whose folder is already gone is still marked cleaned")
	}
}

func TestCountChainAnchors(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	addRecord(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, "/tmp/a", now)
	addRecord(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental, "/tmp/b", now)
	addRecord(t, c, "c8tqs2hgp4mfbcl00003", "web01", TypeDifferential, "/tmp/c", now)
	addRecord(t, c, "c8tqs2hhp4mfbcl00004", "web01", TypeMirror, "/tmp/d", now)
	addRecord(t, c, "c8tqs2hip4mfbcl00005", "db01", TypeFull, "/tmp/e", now)

	if n := CountChainAnchors(c, "web01"); n != 2 {
		t.Errorf("expected 2 anchors (full, incremental), got %d", n)
	}

	if err := c.Set("c8tqs2hfp4mfbcl00002", FieldCleaned, "true"); err != nil {
		t.Fatal(err)
	}
	if n := CountChainAnchors(c, "web01"); n != 1 {
		t.Errorf("cleaned records do not anchor chains, got %d", n)
	}
}

package fleetback

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitCatalog(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	kept := makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	addRecord(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeIncremental,
		filepath.Join(c.Root(), "web01", "vanished"), time.Now())

	if err := InitCatalog(c); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Record("c8tqs2hep4mfbcl00001"); err != nil {
		t.Errorf("records with a folder must survive: %v", err)
	}
	if _, err := c.Record("c8tqs2hfp4mfbcl00002"); err == nil {
		t.Errorf("records without a folder must be dropped")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("reset never touches backup data: %v", err)
	}
}

func TestDeleteHost(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	doomed := makeSnapshot(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, 1)
	other := makeSnapshot(t, c, "c8tqs2hfp4mfbcl00002", "db01", TypeFull, 1)

	if err := DeleteHost(c, "web01"); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Record("c8tqs2hep4mfbcl00001"); err == nil {
		t.Errorf("the host's records must be gone")
	}
	if _, err := os.Stat(doomed); !os.IsNotExist(err) {
		t.Errorf("the host's data must be gone")
	}
	if _, err := c.Record("c8tqs2hfp4mfbcl00002"); err != nil {
		t.Errorf("other hosts must survive: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("other hosts' data must survive: %v", err)
	}
}

func TestRepairCatalog(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// A truncated record, as left by a crash between catalog writes.
	if err := c.Set("c8tqs2hep4mfbcl00001", FieldPath, filepath.Join(c.Root(), "orphan")); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(c.Root(), "orphan"), 0o755); err != nil {
		t.Fatal(err)
	}
	// A record with no path at all is beyond repair.
	if err := c.Set("c8tqs2hfp4mfbcl00002", FieldHost, "web01"); err != nil {
		t.Fatal(err)
	}

	if err := RepairCatalog(c); err != nil {
		t.Fatal(err)
	}

	rec, err := c.Record("c8tqs2hep4mfbcl00001")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Host == "" || rec.Type == "" || rec.OS == "" || rec.Timestamp.IsZero() {
		t.Errorf("repaired record still has holes: %+v", rec)
	}

	if _, err := c.Record("c8tqs2hfp4mfbcl00002"); err == nil {
		t.Errorf("pathless records must be dropped")
	}
}

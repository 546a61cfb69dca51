package fleetback

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func shJob(id, host, script string) Job {
	return Job{ID: id, Host: host, Args: []string{"/bin/sh", "-c", script}}
}

func TestRunnerRecordsStatuses(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	addRecord(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, "/tmp/a", now)
	addRecord(t, c, "c8tqs2hfp4mfbcl00002", "web02", TypeFull, "/tmp/b", now)
	addRecord(t, c, "c8tqs2hgp4mfbcl00003", "web03", TypeFull, "/tmp/c", now)

	r := &Runner{Catalog: c, Parallel: 2}
	failed := r.Run([]Job{
		shJob("c8tqs2hep4mfbcl00001", "web01", "exit 0"),
		shJob("c8tqs2hfp4mfbcl00002", "web02", "exit 23"),
		shJob("c8tqs2hgp4mfbcl00003", "web03", "exit 1"),
	})

	// Partial transfers and hard failures are both retried.
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed jobs, got %d", len(failed))
	}

	for id, status := range map[string]int{
		"c8tqs2hep4mfbcl00001": 0,
		"c8tqs2hfp4mfbcl00002": 23,
		"c8tqs2hgp4mfbcl00003": 1,
	} {
		rec, err := c.Record(id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Status == nil || *rec.Status != status {
			t.Errorf("%s: expected status %d, got %v", id, status, rec.Status)
		}
		if rec.Start == nil || rec.End == nil {
			t.Errorf("%s: start and end must be recorded", id)
		}
	}
}

func TestRunnerStartFailure(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	addRecord(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, "/tmp/a", time.Now())

	r := &Runner{Catalog: c, Parallel: 1}
	failed := r.Run([]Job{{
		ID: "c8tqs2hep4mfbcl00001", Host: "web01",
		Args: []string{"/nonexistent/transfer-tool"},
	}})

	if len(failed) != 1 {
		t.Fatalf("expected 1 failed job, got %d", len(failed))
	}
	rec, _ := c.Record("c8tqs2hep4mfbcl00001")
	if rec.Status == nil || *rec.Status != -1 {
		t.Errorf("unstartable jobs must record status -1, got %v", rec.Status)
	}
}

func TestRunWithRetry(t *testing.T) {
	c, err := ReadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	addRecord(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeFull, "/tmp/a", time.Now())

	// Fails on the first attempt, succeeds once the marker file exists.
	marker := filepath.Join(t.TempDir(), "marker")
	script := "if [ -e " + marker + " ]; then exit 0; else touch " + marker + "; exit 1; fi"

	r := &Runner{Catalog: c, Parallel: 1}
	failed := r.RunWithRetry([]Job{shJob("c8tqs2hep4mfbcl00001", "web01", script)}, 2, 0)

	if len(failed) != 0 {
		t.Errorf("expected the retry to converge, got %d failed jobs", len(failed))
	}
	rec, _ := c.Record("c8tqs2hep4mfbcl00001")
	if rec.Status == nil || *rec.Status != 0 {
		t.Errorf("the final status must win: %v", rec.Status)
	}
}

func TestRunnerRetentionTrigger(t *testing.T) {
	root := t.TempDir()
	c, err := ReadCatalog(root)
	if err != nil {
		t.Fatal(err)
	}

	// An old incremental next to a fresher full: the old one expires as
	// soon as its host's backup succeeds.
	oldPath := filepath.Join(root, "web01", "old")
	if err := os.MkdirAll(oldPath, 0o755); err != nil {
		t.Fatal(err)
	}
	addRecord(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeIncremental, oldPath, time.Now().AddDate(0, 0, -30))
	addRecord(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeFull, filepath.Join(root, "web01", "new"), time.Now())

	r := &Runner{
		Catalog:   c,
		Parallel:  1,
		Retention: &RetentionPolicy{Days: 7},
	}
	r.Run([]Job{shJob("c8tqs2hfp4mfbcl00002", "web01", "exit 0")})

	rec, _ := c.Record("c8tqs2hep4mfbcl00001")
	if !rec.Cleaned {
		t.Errorf("expired backup must be cleaned after a successful run")
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expired backup folder must be deleted")
	}

	rec, _ = c.Record("c8tqs2hfp4mfbcl00002")
	if rec.Cleaned {
		t.Errorf("the fresh backup must survive")
	}
}

func TestRunnerNoRetentionOnFailure(t *testing.T) {
	root := t.TempDir()
	c, err := ReadCatalog(root)
	if err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(root, "web01", "old")
	if err := os.MkdirAll(oldPath, 0o755); err != nil {
		t.Fatal(err)
	}
	addRecord(t, c, "c8tqs2hep4mfbcl00001", "web01", TypeIncremental, oldPath, time.Now().AddDate(0, 0, -30))
	addRecord(t, c, "c8tqs2hfp4mfbcl00002", "web01", TypeFull, filepath.Join(root, "web01", "new"), time.Now())

	r := &Runner{Catalog: c, Parallel: 1, Retention: &RetentionPolicy{Days: 7}}
	r.Run([]Job{shJob("c8tqs2hfp4mfbcl00002", "web01", "exit 1")})

	rec, _ := c.Record("c8tqs2hep4mfbcl00001")
	if rec.Cleaned {
		t.Errorf("a failed run must not trigger retention")
	}
}

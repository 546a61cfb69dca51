package fleetback

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Partial-transfer exit codes of the transfer tool. They signal that some
// files vanished or could not be read mid-run; the transfer as a whole is
// still usable, so they are classified as warnings rather than errors.
var warningStatuses = map[int]bool{
	23: true,
	24: true,
}

var schedulerLog = logrus.WithFields(logrus.Fields{
	"component": "scheduler",
})

// Runner executes composed jobs against a bounded worker pool. Workers only
// run the transfer subprocess and report its exit code; every catalog write
// (start at dispatch, end and status at completion) happens on the calling
// goroutine, so there is never more than one catalog writer.
type Runner struct {
	Catalog  *Catalog
	Parallel int

	// SkipErrors makes failed and partial transfers eligible for the
	// retention trigger, mirroring the operator's --skip-error intent.
	SkipErrors bool
	Verbose    bool

	// Retention, when set, is applied to a job's host after an eligible
	// completion (success, or any completion under SkipErrors).
	Retention *RetentionPolicy
}

// Run executes all jobs, blocks until the whole batch has finished, then
// classifies every exit status, updates the catalog and returns the jobs
// whose exit code was non-zero so the caller can retry them.
func (r *Runner) Run(jobs []Job) []Job {
	if len(jobs) == 0 {
		return nil
	}

	limit := r.Parallel
	if limit < 1 {
		limit = 1
	}

	for _, job := range jobs {
		schedulerLog.WithFields(logrus.Fields{"host": job.Host, "id": job.ID}).
			Infof("starting transfer")
		if job.ID != "" && r.Catalog != nil {
			if err := r.Catalog.SetTime(job.ID, FieldStart, time.Now()); err != nil {
				schedulerLog.Errorf("cannot record job start: %v", err)
			}
		}
	}

	statuses := make([]int, len(jobs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range jobs {
		g.Go(func() error {
			statuses[i] = r.runJob(jobs[i])
			return nil
		})
	}
	_ = g.Wait()

	var failed []Job
	for i, job := range jobs {
		status := statuses[i]
		log := schedulerLog.WithFields(logrus.Fields{
			"host":   job.Host,
			"id":     job.ID,
			"status": status,
		})

		if job.ID != "" && r.Catalog != nil {
			if err := r.Catalog.SetTime(job.ID, FieldEnd, time.Now()); err != nil {
				log.Errorf("cannot record job end: %v", err)
			}
			if err := r.Catalog.Set(job.ID, FieldStatus, strconv.Itoa(status)); err != nil {
				log.Errorf("cannot record job status: %v", err)
			}
		}

		switch {
		case status == 0:
			log.Infof("transfer finished")
		case warningStatuses[status]:
			log.Warnf("partial transfer (exit code %d)", status)
			failed = append(failed, job)
		default:
			log.Errorf("transfer failed with exit code %d", status)
			failed = append(failed, job)
		}

		if job.ID != "" && r.Catalog != nil && r.Retention != nil && (status == 0 || r.SkipErrors) {
			if err := ApplyRetention(r.Catalog, job.Host, *r.Retention); err != nil {
				log.Warnf("retention failed: %v", err)
			}
		}
	}

	return failed
}

// RunWithRetry runs the batch, then re-submits the failed subset up to
// retries additional rounds with a fixed inter-attempt delay, stopping early
// once a round returns no failures.
func (r *Runner) RunWithRetry(jobs []Job, retries int, delay time.Duration) []Job {
	failed := r.Run(jobs)
	for attempt := 1; attempt <= retries && len(failed) > 0; attempt++ {
		if delay > 0 {
			time.Sleep(delay)
		}
		schedulerLog.Infof("retrying %d failed job(s), round %d/%d", len(failed), attempt, retries)
		failed = r.Run(failed)
	}
	return failed
}

func (r *Runner) runJob(job Job) int {
	cmd := exec.Command(job.Args[0], job.Args[1:]...)
	if r.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}

	err := cmd.Run()
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	schedulerLog.WithFields(logrus.Fields{"host": job.Host}).
		Errorf("cannot start transfer: %v", err)
	return -1
}

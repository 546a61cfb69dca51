package cmd

import (
	"github.com/fleetback/fleetback/lib"

	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cmdRestoreCatalog  string
	cmdRestoreID       string
	cmdRestoreLast     bool
	cmdRestoreHost     string
	cmdRestoreUser     string
	cmdRestoreOS       string
	cmdRestoreRootDir  string
	cmdRestoreMirror   bool
	cmdRestoreForce    bool
	cmdRestoreTimeout  int
	cmdRestoreSkipErr  bool
	cmdRestoreToolPath string
	cmdRestoreBwLimit  int
	cmdRestoreSSHPort  int
	cmdRestoreExclude  []string
	cmdRestoreOptions  string

	cmdRestore = &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup onto a host",
		Run: func(cmd *cobra.Command, args []string) {
			catalog, err := fleetback.ReadCatalog(cmdRestoreCatalog)
			if err != nil {
				logrus.Fatal(err)
			}
			catalog.SetDryRun(dryRun)

			var restoreOS fleetback.OSFamily
			if cmdRestoreOS != "" {
				restoreOS, err = fleetback.ParseOSFamily(cmdRestoreOS)
				if err != nil {
					logrus.Fatal(err)
				}
			}

			sshPort := cmdRestoreSSHPort
			if sshPort == 0 {
				sshPort = 22
			}
			if !fleetback.IsLocalHost(cmdRestoreHost) && !fleetback.CheckHost(cmdRestoreHost, sshPort, 5*time.Second) {
				logrus.Fatalf("port %d on %s is closed or host is unreachable", sshPort, cmdRestoreHost)
			}

			transfer := newTransferBuilder(cmdRestoreOptions).
				WithToolPath(cmdRestoreToolPath).
				WithBwLimit(cmdRestoreBwLimit).
				WithTimeout(cmdRestoreTimeout).
				WithSSHPort(cmdRestoreSSHPort).
				WithExcludes(cmdRestoreExclude).
				WithSkipErrors(cmdRestoreSkipErr).
				WithRunMode().
				FatalOnError()

			jobs, err := fleetback.PlanRestoreJobs(catalog, transfer, fleetback.RestoreRequest{
				Host:      cmdRestoreHost,
				User:      cmdRestoreUser,
				OS:        restoreOS,
				ID:        cmdRestoreID,
				Last:      cmdRestoreLast,
				RootDir:   cmdRestoreRootDir,
				Mirror:    cmdRestoreMirror,
				EnableLog: enableLog,
			})
			if err != nil {
				logrus.Fatal(err)
			}

			if enableLog && len(jobs) > 0 && jobs[0].LogPath != "" {
				closer, err := fleetback.AddActionLog(jobs[0].LogPath)
				if err != nil {
					logrus.Fatal(err)
				}
				defer closer.Close()
			}

			var confirmed []fleetback.Job
			for _, job := range jobs {
				if cmdRestoreForce || fleetback.Confirm("Restore "+job.Args[len(job.Args)-2]+"?") {
					confirmed = append(confirmed, job)
				}
			}

			// Restores run one at a time: they all write onto the same host.
			runner := &fleetback.Runner{Parallel: 1, Verbose: verbose(), SkipErrors: cmdRestoreSkipErr}
			failed := runner.Run(confirmed)
			if len(failed) > 0 {
				logrus.Errorf("%d restore job(s) failed", len(failed))
				os.Exit(1)
			}
		},
	}
)

func init() {
	cmdRestore.Flags().StringVarP(&cmdRestoreCatalog, "catalog", "C", "", "backup root containing the catalog file")
	cmdRestore.Flags().StringVarP(&cmdRestoreID, "backup-id", "i", "", "backup id to restore")
	cmdRestore.Flags().BoolVarP(&cmdRestoreLast, "last", "L", false, "restore the host's most recent backup")
	cmdRestore.Flags().StringVarP(&cmdRestoreHost, "computer", "c", "", "hostname or ip address to restore onto")
	cmdRestore.Flags().StringVarP(&cmdRestoreUser, "user", "u", os.Getenv("USER"), "login name on the restore host")
	cmdRestore.Flags().StringVarP(&cmdRestoreOS, "type", "t", "", "operating system family of the restore host")
	cmdRestore.Flags().StringVar(&cmdRestoreRootDir, "root-dir", "", "destination root for custom-data folders")
	cmdRestore.Flags().BoolVarP(&cmdRestoreMirror, "mirror", "m", false, "mirror mode (delete extraneous files on the target)")
	cmdRestore.Flags().BoolVarP(&cmdRestoreForce, "force", "f", false, "do not ask for confirmation")
	cmdRestore.Flags().IntVarP(&cmdRestoreTimeout, "timeout", "T", 0, "I/O timeout in seconds, passed to the transfer tool")
	cmdRestore.Flags().BoolVarP(&cmdRestoreSkipErr, "skip-error", "e", false, "keep going after transfer errors")
	cmdRestore.Flags().StringVarP(&cmdRestoreToolPath, "rsync-path", "R", "", "custom transfer tool path")
	cmdRestore.Flags().IntVarP(&cmdRestoreBwLimit, "bwlimit", "b", 0, "bandwidth limit in KB/s")
	cmdRestore.Flags().IntVar(&cmdRestoreSSHPort, "ssh-port", 0, "custom ssh port")
	cmdRestore.Flags().StringSliceVarP(&cmdRestoreExclude, "exclude", "E", nil, "exclude pattern")
	cmdRestore.Flags().StringVarP(&cmdRestoreOptions, "options", "o", "", "transfer options (key=value, comma separated, preset=NAME supported)")

	_ = cmdRestore.MarkFlagRequired("catalog")
	_ = cmdRestore.MarkFlagRequired("computer")
	cmdRestore.MarkFlagsMutuallyExclusive("backup-id", "last")
	cmdRestore.MarkFlagsOneRequired("backup-id", "last")
}

package cmd

import (
	"github.com/fleetback/fleetback/lib"

	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cmdExportCatalog     string
	cmdExportID          string
	cmdExportAll         bool
	cmdExportDestination string
	cmdExportMirror      bool
	cmdExportCut         bool
	cmdExportInclude     []string
	cmdExportExclude     []string
	cmdExportTimeout     int
	cmdExportSkipErr     bool
	cmdExportToolPath    string
	cmdExportBwLimit     int
	cmdExportSSHPort     int
	cmdExportOptions     string

	cmdExport = &cobra.Command{
		Use:   "export",
		Short: "Export backups to another backup root",
		Run: func(cmd *cobra.Command, args []string) {
			catalog, err := fleetback.ReadCatalog(cmdExportCatalog)
			if err != nil {
				logrus.Fatal(err)
			}
			catalog.SetDryRun(dryRun)

			if st, err := os.Stat(cmdExportDestination); err != nil || !st.IsDir() {
				logrus.Fatalf("export destination does not exist: %s", cmdExportDestination)
			}

			var logPath string
			if enableLog {
				logPath = filepath.Join(cmdExportDestination, "export.log")
				closer, err := fleetback.AddActionLog(logPath)
				if err != nil {
					logrus.Fatal(err)
				}
				defer closer.Close()
			}

			transfer := newTransferBuilder(cmdExportOptions).
				WithToolPath(cmdExportToolPath).
				WithBwLimit(cmdExportBwLimit).
				WithTimeout(cmdExportTimeout).
				WithSSHPort(cmdExportSSHPort).
				WithExcludes(cmdExportExclude).
				WithIncludes(cmdExportInclude).
				WithSkipErrors(cmdExportSkipErr).
				WithRunMode().
				FatalOnError()

			if cmdExportAll {
				exportCatalog(catalog, transfer, logPath)
				return
			}
			exportBackup(catalog, transfer, logPath)
		},
	}
)

// exportBackup copies one backup folder into destination/<host>/, preserving
// the timestamp folder so the copy can be re-imported later.
func exportBackup(c *fleetback.Catalog, t *fleetback.Transfer, logPath string) {
	rec, err := c.Lookup(cmdExportID)
	if err != nil {
		logrus.Fatal(err)
	}
	if rec.Retired() {
		logrus.Fatalf("backup %s has been cleaned or archived", rec.ShortID())
	}
	if _, err := os.Stat(rec.Path); err != nil {
		logrus.Fatalf("backup folder %s does not exist", rec.Path)
	}

	hostDir := filepath.Join(cmdExportDestination, rec.Host)
	if !dryRun {
		if err := os.MkdirAll(hostDir, 0o755); err != nil {
			logrus.Fatal(err)
		}
	}

	jobArgs := t.ExportArgs(cmdExportMirror, cmdExportCut, false, logPath)
	jobArgs = append(jobArgs, rec.Path, hostDir)

	runner := &fleetback.Runner{Parallel: 1, Verbose: verbose(), SkipErrors: cmdExportSkipErr}
	failed := runner.Run([]fleetback.Job{{Host: rec.Host, Args: jobArgs, LogPath: logPath}})
	if len(failed) > 0 {
		os.Exit(1)
	}

	if cmdExportCut && !dryRun {
		if err := c.Set(rec.ID, fleetback.FieldCleaned, "true"); err != nil {
			logrus.Fatal(err)
		}
	}
}

// exportCatalog copies the whole backup root into the destination and
// rewrites the exported catalog so its paths point at the new root. The
// last_backup symlinks are not followed across the copy.
func exportCatalog(c *fleetback.Catalog, t *fleetback.Transfer, logPath string) {
	jobArgs := t.ExportArgs(cmdExportMirror, cmdExportCut, true, logPath)
	jobArgs = append(jobArgs, strings.TrimSuffix(c.Root(), "/")+"/", cmdExportDestination)

	runner := &fleetback.Runner{Parallel: 1, Verbose: verbose(), SkipErrors: cmdExportSkipErr}
	failed := runner.Run([]fleetback.Job{{Host: "catalog", Args: jobArgs, LogPath: logPath}})
	if len(failed) > 0 {
		os.Exit(1)
	}

	if dryRun {
		return
	}

	exported := filepath.Join(cmdExportDestination, fleetback.CatalogFileName)
	if err := fleetback.FindReplace(exported, strings.TrimSuffix(c.Root(), "/"), strings.TrimSuffix(cmdExportDestination, "/")); err != nil {
		logrus.Errorf("cannot rewrite exported catalog: %v", err)
	}
}

func init() {
	cmdExport.Flags().StringVarP(&cmdExportCatalog, "catalog", "C", "", "backup root containing the catalog file")
	cmdExport.Flags().StringVarP(&cmdExportID, "backup-id", "i", "", "backup id to export")
	cmdExport.Flags().BoolVarP(&cmdExportAll, "all", "a", false, "export the whole backup root")
	cmdExport.Flags().StringVarP(&cmdExportDestination, "destination", "d", "", "export destination folder")
	cmdExport.Flags().BoolVarP(&cmdExportMirror, "mirror", "m", false, "mirror mode (delete extraneous files at the destination)")
	cmdExport.Flags().BoolVarP(&cmdExportCut, "cut", "x", false, "move instead of copy, marking exported backups as cleaned")
	cmdExport.Flags().StringSliceVarP(&cmdExportInclude, "include", "I", nil, "include pattern (everything else is excluded)")
	cmdExport.Flags().StringSliceVarP(&cmdExportExclude, "exclude", "E", nil, "exclude pattern")
	cmdExport.Flags().IntVarP(&cmdExportTimeout, "timeout", "T", 0, "I/O timeout in seconds, passed to the transfer tool")
	cmdExport.Flags().BoolVarP(&cmdExportSkipErr, "skip-error", "e", false, "keep going after transfer errors")
	cmdExport.Flags().StringVarP(&cmdExportToolPath, "rsync-path", "R", "", "custom transfer tool path")
	cmdExport.Flags().IntVarP(&cmdExportBwLimit, "bwlimit", "b", 0, "bandwidth limit in KB/s")
	cmdExport.Flags().IntVar(&cmdExportSSHPort, "ssh-port", 0, "custom ssh port")
	cmdExport.Flags().StringVarP(&cmdExportOptions, "options", "o", "", "transfer options (key=value, comma separated, preset=NAME supported)")

	_ = cmdExport.MarkFlagRequired("catalog")
	_ = cmdExport.MarkFlagRequired("destination")
	cmdExport.MarkFlagsMutuallyExclusive("backup-id", "all")
	cmdExport.MarkFlagsOneRequired("backup-id", "all")
}

package cmd

import (
	"github.com/fleetback/fleetback/lib"

	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cmdBackupHost       string
	cmdBackupHostList   string
	cmdBackupDest       string
	cmdBackupMode       string
	cmdBackupData       []string
	cmdBackupCustomData []string
	cmdBackupUser       string
	cmdBackupOS         string
	cmdBackupCompress   bool
	cmdBackupRetention  []int
	cmdBackupParallel   int
	cmdBackupTimeout    int
	cmdBackupSkipErr    bool
	cmdBackupToolPath   string
	cmdBackupBwLimit    int
	cmdBackupSSHPort    int
	cmdBackupExclude    []string
	cmdBackupStartFrom  string
	cmdBackupRetry      int
	cmdBackupRetryDelay int
	cmdBackupOptions    string

	cmdBackup = &cobra.Command{
		Use:   "backup",
		Short: "Back up one or more hosts",
		Run: func(cmd *cobra.Command, args []string) {
			hosts, err := backupHosts()
			if err != nil {
				logrus.Fatal(err)
			}

			osFamily, err := fleetback.ParseOSFamily(cmdBackupOS)
			if err != nil {
				logrus.Fatal(err)
			}
			mode, err := fleetback.ParseBackupType(cmdBackupMode)
			if err != nil {
				logrus.Fatal(err)
			}

			var categories []fleetback.Category
			for _, d := range cmdBackupData {
				category, err := fleetback.ParseCategory(strings.ToLower(d))
				if err != nil {
					logrus.Fatal(err)
				}
				categories = append(categories, category)
			}
			if len(categories) == 0 && len(cmdBackupCustomData) == 0 {
				logrus.Fatal("one of --data or --custom-data is required")
			}

			var retention *fleetback.RetentionPolicy
			if len(cmdBackupRetention) > 0 {
				policy, err := fleetback.ParseRetention(cmdBackupRetention)
				if err != nil {
					logrus.Fatal(err)
				}
				retention = &policy
			}

			catalog, err := fleetback.ReadCatalog(cmdBackupDest)
			if err != nil {
				logrus.Fatal(err)
			}
			catalog.SetDryRun(dryRun)

			if enableLog {
				closer, err := fleetback.AddActionLog(filepath.Join(cmdBackupDest, "general.log"))
				if err != nil {
					logrus.Fatal(err)
				}
				defer closer.Close()
			}

			transfer := newTransferBuilder(cmdBackupOptions).
				WithToolPath(cmdBackupToolPath).
				WithCompress(cmdBackupCompress).
				WithBwLimit(cmdBackupBwLimit).
				WithTimeout(cmdBackupTimeout).
				WithSSHPort(cmdBackupSSHPort).
				WithExcludes(cmdBackupExclude).
				WithSkipErrors(cmdBackupSkipErr).
				WithRunMode().
				FatalOnError()

			composer := &fleetback.Composer{Catalog: catalog, Transfer: transfer}

			sshPort := cmdBackupSSHPort
			if sshPort == 0 {
				sshPort = 22
			}

			var jobs []fleetback.Job
			for _, host := range hosts {
				log := logrus.WithFields(logrus.Fields{"host": host})
				if !fleetback.IsLocalHost(host) && !fleetback.CheckHost(host, sshPort, 5*time.Second) {
					log.Errorf("port %d is closed or host is unreachable, skipping", sshPort)
					continue
				}

				job, err := composer.Compose(fleetback.BackupRequest{
					Host:       host,
					User:       cmdBackupUser,
					OS:         osFamily,
					Mode:       mode,
					Data:       categories,
					CustomData: cmdBackupCustomData,
					StartFrom:  cmdBackupStartFrom,
					EnableLog:  enableLog,
				})
				if err != nil {
					log.Fatalf("cannot compose backup: %v", err)
				}
				jobs = append(jobs, job)
			}

			runner := &fleetback.Runner{
				Catalog:    catalog,
				Parallel:   cmdBackupParallel,
				SkipErrors: cmdBackupSkipErr,
				Verbose:    verbose(),
				Retention:  retention,
			}

			failed := runner.RunWithRetry(jobs, cmdBackupRetry, time.Duration(cmdBackupRetryDelay)*time.Second)
			if len(failed) > 0 {
				logrus.Errorf("%d backup job(s) failed", len(failed))
				os.Exit(1)
			}
		},
	}
)

func backupHosts() ([]string, error) {
	if cmdBackupHost != "" {
		return []string{cmdBackupHost}, nil
	}

	data, err := os.ReadFile(cmdBackupHostList)
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(data)), nil
}

func init() {
	cmdBackup.Flags().StringVarP(&cmdBackupHost, "computer", "c", "", "hostname or ip address to back up")
	cmdBackup.Flags().StringVarP(&cmdBackupHostList, "list", "L", "", "file with hostnames or ip addresses to back up")
	cmdBackup.Flags().StringVarP(&cmdBackupDest, "destination", "d", "", "backup root path")
	cmdBackup.Flags().StringVarP(&cmdBackupMode, "mode", "m", "incremental", "backup mode (full, incremental, differential, mirror)")
	cmdBackup.Flags().StringSliceVarP(&cmdBackupData, "data", "D", nil, "data categories to back up (user, config, application, system, log)")
	cmdBackup.Flags().StringSliceVarP(&cmdBackupCustomData, "custom-data", "C", nil, "custom paths to back up")
	cmdBackup.Flags().StringVarP(&cmdBackupUser, "user", "u", os.Getenv("USER"), "login name on the remote host")
	cmdBackup.Flags().StringVarP(&cmdBackupOS, "type", "t", "", "operating system family of the host (unix, windows, macos)")
	cmdBackup.Flags().BoolVarP(&cmdBackupCompress, "compress", "z", false, "compress data during transfer")
	cmdBackup.Flags().IntSliceVarP(&cmdBackupRetention, "retention", "r", nil, "retention days, optionally followed by a minimum backup count")
	cmdBackup.Flags().IntVarP(&cmdBackupParallel, "parallel", "P", 5, "number of parallel transfers")
	cmdBackup.Flags().IntVarP(&cmdBackupTimeout, "timeout", "T", 0, "I/O timeout in seconds, passed to the transfer tool")
	cmdBackup.Flags().BoolVarP(&cmdBackupSkipErr, "skip-error", "e", false, "keep going after transfer errors")
	cmdBackup.Flags().StringVarP(&cmdBackupToolPath, "rsync-path", "R", "", "custom transfer tool path")
	cmdBackup.Flags().IntVarP(&cmdBackupBwLimit, "bwlimit", "b", 0, "bandwidth limit in KB/s")
	cmdBackup.Flags().IntVar(&cmdBackupSSHPort, "ssh-port", 0, "custom ssh port")
	cmdBackup.Flags().StringSliceVarP(&cmdBackupExclude, "exclude", "E", nil, "exclude pattern")
	cmdBackup.Flags().StringVarP(&cmdBackupStartFrom, "start-from", "s", "", "backup id used as explicit copy baseline")
	cmdBackup.Flags().IntVar(&cmdBackupRetry, "retry", 0, "number of retry rounds for failed jobs")
	cmdBackup.Flags().IntVar(&cmdBackupRetryDelay, "retry-delay", 0, "delay between retry rounds, in seconds")
	cmdBackup.Flags().StringVarP(&cmdBackupOptions, "options", "o", "", "transfer options (key=value, comma separated, preset=NAME supported)")

	_ = cmdBackup.MarkFlagRequired("destination")
	_ = cmdBackup.MarkFlagRequired("type")
	cmdBackup.MarkFlagsMutuallyExclusive("computer", "list")
	cmdBackup.MarkFlagsOneRequired("computer", "list")
	cmdBackup.MarkFlagsMutuallyExclusive("data", "custom-data")
}

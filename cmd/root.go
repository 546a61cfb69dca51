package cmd

import (
	"github.com/fleetback/fleetback/lib"

	"fmt"
	"os"
	"os/user"
	"path"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	presetsDir string
	logLevel   string
	dryRun     bool
	enableLog  bool
	presets    map[string][]fleetback.KeyValuePair

	tag       = "git"
	commit    = "unknown"
	buildDate = "unknown"

	rootCmd = &cobra.Command{
		Use:   "fleetback",
		Short: "Agentless backup, restore and archive orchestration for many hosts",
	}
	cmdVersion = &cobra.Command{
		Use: "version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Version: %s\n", tag)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	}
)

func init() {
	cobra.OnInitialize(func() {
		var err error

		if presetsDir == "" {
			usr, err := user.Current()
			if err != nil {
				logrus.Fatal(err)
			}

			if usr.Uid == "0" {
				presetsDir = path.Join("/etc", "fleetback", "presets")
			} else {
				presetsDir = path.Join(usr.HomeDir, ".config", "fleetback", "presets")
			}
		}

		if logLevel != "" {
			level, err := logrus.ParseLevel(logLevel)
			if err == nil {
				logrus.SetLevel(level)
			} else {
				logrus.Warnf("Cannot set log level: %v", err)
			}
		}

		presets, err = fleetback.ReadPresets(presetsDir)
		if err != nil {
			logrus.Fatal(err)
		}
	})

	rootCmd.PersistentFlags().StringVarP(&presetsDir, "presets-dir", "p", "", "path to transfer presets directory")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", os.Getenv("LOG_LEVEL"), "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "N", false, "report planned actions without catalog writes or destructive effects")
	rootCmd.PersistentFlags().BoolVarP(&enableLog, "log", "l", false, "persist the action's decisions to an append-only log file")
	rootCmd.AddCommand(cmdBackup, cmdRestore, cmdArchive, cmdList, cmdExport, cmdConfig, cmdVersion)
}

func verbose() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

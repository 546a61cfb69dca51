package cmd

import (
	"github.com/fleetback/fleetback/lib"

	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cmdListCatalog  string
	cmdListID       string
	cmdListHost     string
	cmdListArchived bool
	cmdListCleaned  bool
	cmdListOneline  bool

	cmdList = &cobra.Command{
		Use:   "list",
		Short: "List the backups of a catalog",
		Run: func(cmd *cobra.Command, args []string) {
			catalog, err := fleetback.ReadCatalog(cmdListCatalog)
			if err != nil {
				logrus.Fatal(err)
			}

			if cmdListID != "" {
				rec, err := catalog.Lookup(cmdListID)
				if err != nil {
					logrus.Fatal(err)
				}
				printRecord(rec)
				printFolders(rec)
				return
			}

			shown := 0
			for _, rec := range catalog.Records() {
				if cmdListHost != "" && rec.Host != cmdListHost {
					continue
				}
				if cmdListArchived != rec.Archived || cmdListCleaned != rec.Cleaned {
					continue
				}
				if cmdListOneline {
					printRecordLine(rec)
				} else {
					printRecord(rec)
					fmt.Println()
				}
				shown++
			}
			if shown == 0 {
				logrus.Info("no backup matched")
			}
		},
	}
)

func printRecord(rec fleetback.Record) {
	fmt.Printf("Backup id: %s\n", rec.ID)
	fmt.Printf("Hostname or ip: %s\n", rec.Host)
	fmt.Printf("Type: %s\n", rec.Type)
	fmt.Printf("Timestamp: %s\n", rec.Timestamp.Format(fleetback.TimeFormat))
	fmt.Printf("Folder: %s\n", rec.Path)
	fmt.Printf("OS: %s\n", rec.OS)
	if rec.Start != nil {
		fmt.Printf("Start: %s\n", rec.Start.Format(fleetback.TimeFormat))
	}
	if rec.End != nil {
		fmt.Printf("End: %s\n", rec.End.Format(fleetback.TimeFormat))
	}
	if rec.Status != nil {
		fmt.Printf("Status: %d\n", *rec.Status)
	}
	fmt.Printf("Cleaned: %v\n", rec.Cleaned)
	fmt.Printf("Archived: %v\n", rec.Archived)
}

func printRecordLine(rec fleetback.Record) {
	fmt.Printf("%s  %-16s %-12s %s\n", rec.ID, rec.Host, rec.Type, rec.Timestamp.Format(fleetback.TimeFormat))
}

func printFolders(rec fleetback.Record) {
	entries, err := os.ReadDir(rec.Path)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) > 0 {
		fmt.Printf("Folders: %s\n", strings.Join(names, ", "))
	}
}

func init() {
	cmdList.Flags().StringVarP(&cmdListCatalog, "catalog", "C", "", "backup root containing the catalog file")
	cmdList.Flags().StringVarP(&cmdListID, "backup-id", "i", "", "show the details of one backup")
	cmdList.Flags().StringVarP(&cmdListHost, "computer", "c", "", "only list backups of this host")
	cmdList.Flags().BoolVar(&cmdListArchived, "archived", false, "list archived backups instead of active ones")
	cmdList.Flags().BoolVar(&cmdListCleaned, "cleaned", false, "list cleaned backups instead of active ones")
	cmdList.Flags().BoolVarP(&cmdListOneline, "oneline", "1", false, "one line per backup")

	_ = cmdList.MarkFlagRequired("catalog")
	cmdList.MarkFlagsMutuallyExclusive("archived", "cleaned")
}

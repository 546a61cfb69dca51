package cmd

import (
	"github.com/fleetback/fleetback/lib"

	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cmdConfigCatalog    string
	cmdConfigInit       bool
	cmdConfigClean      bool
	cmdConfigDeleteHost string
	cmdConfigDeploy     string
	cmdConfigDeployUser string
	cmdConfigCheck      string
	cmdConfigSSHPort    int
	cmdConfigForce      bool

	cmdConfig = &cobra.Command{
		Use:   "config",
		Short: "Maintain the catalog and the ssh access of hosts",
		Run: func(cmd *cobra.Command, args []string) {
			switch {
			case cmdConfigInit:
				if !cmdConfigForce && !fleetback.Confirm("Reset the catalog, dropping records whose folder is gone?") {
					return
				}
				withCatalog(func(c *fleetback.Catalog) error { return fleetback.InitCatalog(c) })
			case cmdConfigClean:
				withCatalog(fleetback.RepairCatalog)
			case cmdConfigDeleteHost != "":
				if !cmdConfigForce && !fleetback.Confirm(fmt.Sprintf("Delete every backup of %s?", cmdConfigDeleteHost)) {
					return
				}
				withCatalog(func(c *fleetback.Catalog) error {
					return fleetback.DeleteHost(c, cmdConfigDeleteHost)
				})
			case cmdConfigDeploy != "":
				deployKey(cmdConfigDeploy)
			case cmdConfigCheck != "":
				port := cmdConfigSSHPort
				if port == 0 {
					port = 22
				}
				if fleetback.CheckHost(cmdConfigCheck, port, 5*time.Second) {
					fmt.Printf("ssh port %d on %s is open\n", port, cmdConfigCheck)
				} else {
					logrus.Errorf("ssh port %d on %s is closed or host is unreachable", port, cmdConfigCheck)
					os.Exit(1)
				}
			default:
				logrus.Fatal("nothing to do: pass one of --init, --clean, --delete-host, --deploy or --check")
			}
		},
	}
)

func withCatalog(fn func(*fleetback.Catalog) error) {
	if cmdConfigCatalog == "" {
		logrus.Fatal("--catalog is required for catalog maintenance")
	}
	catalog, err := fleetback.ReadCatalog(cmdConfigCatalog)
	if err != nil {
		logrus.Fatal(err)
	}
	catalog.SetDryRun(dryRun)
	if err := fn(catalog); err != nil {
		logrus.Fatal(err)
	}
}

// deployKey installs the current user's public key on the host, so backups
// can run unattended. It shells out to ssh-copy-id, which handles key
// selection and the authorized_keys dance.
func deployKey(host string) {
	target := host
	if cmdConfigDeployUser != "" {
		target = cmdConfigDeployUser + "@" + host
	}
	args := []string{"ssh-copy-id"}
	if cmdConfigSSHPort > 0 {
		args = append(args, "-p", fmt.Sprintf("%d", cmdConfigSSHPort))
	}
	cmd := fleetback.BuildCommand(args, target)
	cmd.Stdin = os.Stdin
	if err := fleetback.RunCommand(logrus.WithField("host", host), cmd); err != nil {
		logrus.Fatalf("cannot deploy key to %s: %v", target, err)
	}
}

func init() {
	cmdConfig.Flags().StringVarP(&cmdConfigCatalog, "catalog", "C", "", "backup root containing the catalog file")
	cmdConfig.Flags().BoolVar(&cmdConfigInit, "init", false, "reset the catalog, dropping records whose folder is gone")
	cmdConfig.Flags().BoolVar(&cmdConfigClean, "clean", false, "repair the catalog, filling missing record fields")
	cmdConfig.Flags().StringVar(&cmdConfigDeleteHost, "delete-host", "", "delete every backup and record of a host")
	cmdConfig.Flags().StringVar(&cmdConfigDeploy, "deploy", "", "install the local public key on a host")
	cmdConfig.Flags().StringVarP(&cmdConfigDeployUser, "user", "u", os.Getenv("USER"), "login name used for key deployment")
	cmdConfig.Flags().StringVar(&cmdConfigCheck, "check", "", "probe a host's ssh port")
	cmdConfig.Flags().IntVar(&cmdConfigSSHPort, "ssh-port", 0, "custom ssh port")
	cmdConfig.Flags().BoolVarP(&cmdConfigForce, "force", "f", false, "do not ask for confirmation")

	cmdConfig.MarkFlagsMutuallyExclusive("init", "clean", "delete-host", "deploy", "check")
}

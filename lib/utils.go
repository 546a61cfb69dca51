package fleetback

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// BuildCommand builds an exec.Cmd from an argument vector plus additional
// arguments. Stdout defaults to stderr because we don't want subprocesses
// to write on our own output.
func BuildCommand(command []string, additionalArgs ...string) *exec.Cmd {
	fullArgs := append(append([]string{}, command...), additionalArgs...)
	cmd := exec.Command(fullArgs[0], fullArgs[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd
}

func StartCommand(log *logrus.Entry, cmd *exec.Cmd) error {
	log.Printf("starting: %s", cmd.String())
	return cmd.Start()
}

func RunCommand(log *logrus.Entry, cmd *exec.Cmd) error {
	log.Printf("starting: %s", cmd.String())
	return cmd.Run()
}

// CheckHost reports whether a TCP connection can be established to the
// host's ssh port. It is a reachability probe, not an authentication check.
func CheckHost(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// MakeSymlink replaces destination with a symbolic link to source. On
// filesystems without symlink support this only logs a warning.
func MakeSymlink(source, destination string) {
	if _, err := os.Lstat(destination); err == nil {
		_ = os.Remove(destination)
	}
	if err := os.Symlink(source, destination); err != nil {
		logrus.Warnf("cannot create symlink %s: %v", destination, err)
	}
}

// IsLocalHost reports whether a backup or restore target is the local
// machine, in which case sources are plain paths instead of remote specs.
func IsLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Confirm asks the user a yes/no question on the terminal. An empty answer
// means no.
func Confirm(message string) bool {
	fmt.Printf("%s\nTo continue? [y/N] ", message)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

// FindReplace rewrites a text file substituting every occurrence of old with
// new. Used to migrate catalog paths after an export.
func FindReplace(path, old, new string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.ReplaceAll(string(data), old, new)), 0o644)
}

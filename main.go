package main

import (
	"github.com/fleetback/fleetback/cmd"
)

func main() {
	cmd.Execute()
}

package cmd

import (
	"github.com/fleetback/fleetback/lib"

	"github.com/sirupsen/logrus"
)

// transferBuilder assembles transfer settings from an option string (with
// preset substitution) and explicit command-line flags, flags winning.
type transferBuilder struct {
	Transfer *fleetback.Transfer
	Error    error
}

func newTransferBuilder(optionString string) *transferBuilder {
	options, err := fleetback.EvalOptions(fleetback.SplitOptions(optionString), presets)
	if err != nil {
		return &transferBuilder{Error: err}
	}

	transfer, err := fleetback.TransferFromOptions(options)
	return &transferBuilder{Transfer: transfer, Error: err}
}

func (b *transferBuilder) WithToolPath(path string) *transferBuilder {
	if b.Error == nil && path != "" {
		b.Transfer.SetToolPath(path)
	}
	return b
}

func (b *transferBuilder) WithCompress(compress bool) *transferBuilder {
	if b.Error == nil && compress {
		b.Transfer.Compress = true
	}
	return b
}

func (b *transferBuilder) WithBwLimit(limit int) *transferBuilder {
	if b.Error == nil && limit > 0 {
		b.Transfer.BwLimit = limit
	}
	return b
}

func (b *transferBuilder) WithTimeout(timeout int) *transferBuilder {
	if b.Error == nil && timeout > 0 {
		b.Transfer.Timeout = timeout
	}
	return b
}

func (b *transferBuilder) WithSSHPort(port int) *transferBuilder {
	if b.Error == nil && port > 0 {
		b.Transfer.SSHPort = port
	}
	return b
}

func (b *transferBuilder) WithExcludes(excludes []string) *transferBuilder {
	if b.Error == nil {
		b.Transfer.Exclude = append(b.Transfer.Exclude, excludes...)
	}
	return b
}

func (b *transferBuilder) WithIncludes(includes []string) *transferBuilder {
	if b.Error == nil {
		b.Transfer.Include = append(b.Transfer.Include, includes...)
	}
	return b
}

func (b *transferBuilder) WithSkipErrors(skip bool) *transferBuilder {
	if b.Error == nil {
		b.Transfer.SkipErrors = skip
	}
	return b
}

func (b *transferBuilder) WithRunMode() *transferBuilder {
	if b.Error == nil {
		b.Transfer.Verbose = verbose()
		b.Transfer.DryRun = dryRun
	}
	return b
}

func (b *transferBuilder) FatalOnError() *fleetback.Transfer {
	if b.Error != nil {
		logrus.Fatal(b.Error)
	}
	return b.Transfer
}

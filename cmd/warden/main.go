package main

import (
	"github.com/wardenhq/warden/internal/cli"
	"github.com/wardenhq/warden/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}

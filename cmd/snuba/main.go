package main

import (
	"github.com/getsentry/snuba/pkg/cli"
)

func main() {
	cli.Main()
}

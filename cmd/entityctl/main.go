package main

import (
	"github.com/nimburion/entitykit/pkg/cli"
)

func main() {
	cli.Execute(cli.NewCommand(cli.Options{
		Name:        "entityctl",
		Description: "Inspect and exercise entitykit persistence configuration",
		EnvPrefix:   "ENTITYKIT",
	}))
}

package main

import (
	"github.com/loadstone/loadstone/internal/cli"
)

func main() {
	cli.Execute()
}

package main

import (
	"tronsweep/internal/cli"
)

func main() {
	cli.Execute()
}

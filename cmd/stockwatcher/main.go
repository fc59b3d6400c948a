package main

import (
	"stock-alert-engine/internal/cli"
)

func main() {
	cli.Execute()
}

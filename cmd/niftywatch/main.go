package main

import (
	"nifty-market-alerts/internal/cli"
)

func main() {
	cli.Execute()
}

package main

import "crypto-spike-alerts/internal/cli"

func main() {
	cli.Execute()
}

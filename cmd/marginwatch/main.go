package main

import "margin-alerts/internal/cli"

func main() {
	cli.Execute()
}

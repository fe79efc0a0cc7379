package main

import "github.com/emiliopalmerini/mexp/internal/cli"

func main() {
	cli.Execute()
}

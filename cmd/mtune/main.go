package main

import "github.com/emiliopalmerini/mtune/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/rutmehta/halo/internal/cli"

func main() {
	cli.Execute()
}

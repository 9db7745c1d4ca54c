package main

import "github.com/inkdrift/refrain/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/katasec/dstream-rowwatch/internal/cli"

func main() {
	cli.Execute()
}

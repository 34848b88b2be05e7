package main

import "github.com/solidus-pim/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/pandastore/supportbot/cmd"

func main() {
	cmd.Execute()
}

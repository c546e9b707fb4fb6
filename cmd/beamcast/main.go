package main

import "github.com/strandlight/beamcast/cmd/beamcast/commands"

func main() {
	commands.Execute()
}

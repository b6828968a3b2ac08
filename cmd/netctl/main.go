// netctl is the CLI client for a running nethost's admin HTTP API.
package main

import "github.com/nginetechnologies/sceneri-core-sub009/cmd/netctl/commands"

func main() {
	commands.Execute()
}

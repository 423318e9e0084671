// Command routeguard resolves URL authorization rules from the command line.
package main

import "github.com/routeguard/routeguard/cmd/routeguard/cmd"

func main() {
	cmd.Execute()
}

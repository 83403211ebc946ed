// Package main hosts the hltv-sync executable.
package main

import "github.com/hltv-tools/hltv-sync/cmd"

func main() {
	cmd.Execute()
}

// The main package for the wayback-mirror executable.
package main

import (
	"github.com/JakeFAU/wayback-mirror/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

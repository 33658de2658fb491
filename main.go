// The main package for the setops executable.
package main

import (
	"github.com/tenkings/setops-ingest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

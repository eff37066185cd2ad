// The main package for the artist-crawler executable.
package main

import (
	"github.com/JakeFAU/artist-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

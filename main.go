// The main package for the site-search executable.
package main

import (
	"github.com/JakeFAU/site-search/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

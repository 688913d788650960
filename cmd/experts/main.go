// Command experts looks up topic experts and administers the local database.
package main

import (
	"os"

	"github.com/garnizeh/experts/cmd/experts/cmd"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

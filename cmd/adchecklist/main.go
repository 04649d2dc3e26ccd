// Command adchecklist regenerates an Obsidian audit checklist from the
// findings of BloodHound queries, keeping the operator's progress.
package main

import (
	"os"
)

var version = "dev"

func main() {
	os.Exit(Execute(version))
}

// main.go
//
// Entry point; CLI handling lives in the Cobra commands of cmd/root.go.

package main

import (
	"github.com/lpu-sim/lpu-sim/cmd"
)

func main() {
	cmd.Execute()
}

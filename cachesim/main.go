// The cachesim command runs a workload against a simulated cache and reports
// what the cache holds afterwards.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/cachesim/cachesim/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}

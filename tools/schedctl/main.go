// Command schedctl queries a running scheduling service: conflict checks, doctor
// availability, day listings and the gRPC health probe.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

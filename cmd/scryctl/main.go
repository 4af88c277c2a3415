// Command scryctl is the operator CLI for scry-engine: schema migrations,
// generation lock inspection and recovery, and issuing access tokens.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// odatabatch sends the batch described in a yaml batch file to an OData
// service and prints the result of every operation
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

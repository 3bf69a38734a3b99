// Command zcmcat is a demo CLI exercising the zcm transport: send
// publishes one payload to a channel, recv prints messages as they
// arrive. Grounded on firestige-Otus/main.go's delegation to a
// cobra root command.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

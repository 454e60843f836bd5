// Command trailctl records trail lineage and answers lineage queries.
package main

import (
	"os"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

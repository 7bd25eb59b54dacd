// fieldgate is an industrial protocol gateway: it manages field-device
// protocol connections and streams their monitoring data to WebSocket
// subscribers.
package main

import (
	"os"

	"github.com/fieldgate/fieldgate/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

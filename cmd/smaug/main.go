// smaug watches host and process resource usage.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/elaiviaien/smaug/cmd/smaug/cmd"
)

func main() {
	cmd.Execute()
}

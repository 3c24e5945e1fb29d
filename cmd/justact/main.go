// justact runs scenarios of actors publishing justified actions under a
// shared agreement, and inspects the traces they leave.
package main

import "github.com/ppiankov/justact/internal/cli"

func main() {
	cli.Execute()
}

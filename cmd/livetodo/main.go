// Command livetodo is a local-first todo list with live queries.
package main

import "github.com/mesh-intelligence/livetodo/internal/cli"

func main() {
	cli.Execute()
}

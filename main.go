// The main package for the wayback-archiver executable.
package main

import (
	"github.com/JakeFAU/wayback-archiver/cmd"
)

func main() {
	cmd.Execute()
}

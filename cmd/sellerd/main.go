package main

import (
	"fmt"
	"os"

	"github.com/chanmarket/autoseller/sellerd"
)

func main() {
	if err := sellerd.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"github.com/snapforge/snaplock/cmd"
)

func main() {
	cmd.Execute()
}

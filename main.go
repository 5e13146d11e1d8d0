package main

import (
	"github.com/xkilldash9x/gatecrash/cmd"
)

func main() {
	cmd.Execute()
}

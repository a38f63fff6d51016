package main

import (
	"github.com/mensylisir/xmrun/cmd"
)

func main() {
	cmd.Execute()
}

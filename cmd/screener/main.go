package main

import (
	"github.com/balaji-balu/vps-screener/cmd/screener/cli/cmd"
)

func main() {
	cmd.Execute()
}

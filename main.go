package main

import "github.com/findy-network/findy-agent-core/cmd"

func main() {
	cmd.Execute()
}

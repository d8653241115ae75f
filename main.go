package main

import "github.com/crystaldolphin/agentbridge/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/curaious/llmux/cmd"

func main() {
	cmd.Execute()
}

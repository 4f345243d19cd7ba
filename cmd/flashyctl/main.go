package main

import "github.com/flashy-edu/flashy/cmd/flashyctl/cmd"

func main() {
	cmd.Execute()
}

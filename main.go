package main

import "github.com/scienceol/devbox/cmd"

func main() {
	cmd.Execute()
}

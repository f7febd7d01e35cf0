package main

import "github.com/marrusl/yoinkc/cmd/yoinkc/commands"

func main() {
	commands.Execute()
}

package main

import "github.com/paperforge/paperforge/cmd"

func main() {
	cmd.Execute()
}

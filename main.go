package main

import "fsindex/cmd"

func main() {
	cmd.Execute()
}

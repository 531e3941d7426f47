package main

import "ddbridge/cmd"

func main() {
	cmd.Execute()
}

package main

import "trovobridge/cmd"

func main() {
	cmd.Execute()
}

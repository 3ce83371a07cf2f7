package main

import "github.com/hbomb79/Harvest/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/nextlevelbuilder/wamenu/cmd"

func main() {
	cmd.Execute()
}

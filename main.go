package main

import "github.com/AzielCF/az-prospector/cmd"

func main() {
	cmd.Execute()
}

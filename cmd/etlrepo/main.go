package main

import "etlrepo/cmd/etlrepo/cmd"

func main() {
	cmd.Execute()
}

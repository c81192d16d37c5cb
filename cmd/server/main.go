package main

import "github.com/jobboard/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/agentvault/agentvault/cmd/agentvault/cmd"

func main() {
	cmd.Execute()
}

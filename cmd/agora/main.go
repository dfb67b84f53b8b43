package main

import "github.com/agora-social/agora-cli/internal/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/atikulmunna/loglens/internal/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/tvandergeer/bgtask/internal/cli"

func main() {
	cli.Execute()
}

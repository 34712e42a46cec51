package main

import "github.com/vietddude/botkeeper/internal/cli"

func main() {
	cli.Execute()
}

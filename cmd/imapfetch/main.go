package main

import "imapfetch/internal/cli"

func main() {
	cli.Execute()
}

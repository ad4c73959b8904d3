package main

import "github.com/aaronromeo/inboxsync/internal/cli"

func main() {
	cli.Execute()
}

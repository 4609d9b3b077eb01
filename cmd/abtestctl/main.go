package main

import "newsfinder/internal/app/cli"

func main() {
	cli.Execute()
}

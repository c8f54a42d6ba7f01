package main

import "github.com/rpattn/rentalvc/internal/cli"

func main() {
	cli.Execute()
}

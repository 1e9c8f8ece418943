package main

import "github.com/polysentry/polysentry/cmd"

func main() {
	cmd.Execute()
}

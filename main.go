package main

import "github.com/tonimelisma/onedrive-personal/cmd"

func main() {
	cmd.Execute()
}

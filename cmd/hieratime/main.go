package main

import "github.com/VanDung-dev/HieraTime-Engine/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/Sebdysart/hustlexp-engine/services/sweeper/cli"

func main() {
	cli.Execute()
}

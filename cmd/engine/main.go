package main

import "github.com/Sebdysart/hustlexp-engine/services/engine/cli"

func main() {
	cli.Execute()
}

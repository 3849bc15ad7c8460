package main

import "github.com/Sebdysart/hustlexp-engine/services/auditor/cli"

func main() {
	cli.Execute()
}

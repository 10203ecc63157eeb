package main

import "github.com/oshokin/addons-generator/cmd/addons-generator/cmd"

func main() {
	cmd.Execute()
}

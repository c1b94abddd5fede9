package main

import "github.com/joshbouncesecurity/pinot/cmd"

func main() {
	cmd.Execute()
}

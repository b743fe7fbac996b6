package main

import "github.com/wpinspect/wpinspect/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}

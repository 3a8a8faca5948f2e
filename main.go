package main

import "github.com/jobshell/jsh/cmd"

func main() {
	cmd.Execute()
}

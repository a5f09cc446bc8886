package main

import "github.com/pochenphys/Group-Project/cmd"

func main() {
	cmd.Execute()
}

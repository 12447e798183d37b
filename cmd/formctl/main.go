package main

import "form-engine/cmd/formctl/cmd"

func main() {
	cmd.Execute()
}

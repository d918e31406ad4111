package main

import "github.com/jrsteele09/go-admin-session/cmd/adminctl/cmd"

func main() {
	cmd.Execute()
}

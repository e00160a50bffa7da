package main

import "github.com/heyvard/helse-spanner/cmd/spanner/cmd"

func main() {
	cmd.Execute()
}

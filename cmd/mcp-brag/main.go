package main

import "github.com/mvp-joe/mcp-brag/internal/cli"

func main() {
	cli.Execute()
}

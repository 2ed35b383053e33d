package main

import "github.com/KagamiharaNadeshiko/Table-RAG/internal/cli"

func main() {
	cli.Execute()
}

package main

import (
	"github.com/joho/godotenv"

	"ragrep/cmd"
)

func main() {
	// Best-effort: a missing .env is fine, flags and the environment
	// still apply.
	_ = godotenv.Load()

	cmd.Execute()
}

package main

import (
	"github.com/joho/godotenv"

	"wallet-score/internal/cli"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	cli.Execute()
}

package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/jaypierce/moos-ivp-agent/cmd"
)

func main() {
	for _, envFile := range []string{
		".env",
		"../.env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

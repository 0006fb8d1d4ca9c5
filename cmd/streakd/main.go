package main

import (
	"log"

	"handstreak/services/streakd"
)

func main() {
	if err := streakd.Main(); err != nil {
		log.Fatalf("streakd: %v", err)
	}
}

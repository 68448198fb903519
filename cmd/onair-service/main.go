// Package main — точка входа onair-service (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/psds-microservice/onair-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

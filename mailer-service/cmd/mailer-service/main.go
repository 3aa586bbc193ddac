package main

import (
	"log"

	"github.com/Abhinav-Eluri/ProjectZahra/mailer-service/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("mailer service failed: %v", err)
	}
}

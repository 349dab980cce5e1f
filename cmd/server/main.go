package main

import (
	"log"

	"detectserver/internal/app"
)

func main() {
	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	err = application.Run()
	application.Close()
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

package main

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	if err := rootCmd().Execute(); err != nil {
		log.WithError(err).Fatal("arena exited")
	}
}

package main

import (
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

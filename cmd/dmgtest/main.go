package main

import (
	"log"
	"os"
)

func main() {
	err := NewApp(parseArgs()).Run()
	switch {
	case err == errTestsFailed:
		os.Exit(1)
	case err != nil:
		log.Fatal(err)
	}
}

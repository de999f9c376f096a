// Command devtoken prints an access token for local testing:
//
//	go run ./cmd/devtoken -user 7 -ttl 1h
//
// It signs with JWT_SECRET from the environment or .env.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/seat-booking-core/internal/utils"
)

func main() {
	user := flag.Uint64("user", 1, "user id to put in the sub claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *user, *ttl)
	if err != nil {
		log.Fatalf("devtoken: %v", err)
	}
	fmt.Println(tok.Token)
}

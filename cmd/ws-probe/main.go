// Command ws-probe connects to the event stream as a given user and
// prints every event it receives. It mints its own development token,
// so it needs the same JWT secret the server runs with.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"flopods-backend/pkg/auth"
	"flopods-backend/pkg/wsclient"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/ws", "WebSocket endpoint")
		userID  = flag.String("user", "", "user id to connect as")
		email   = flag.String("email", "probe@localhost", "email claim")
		secret  = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
		issuer  = flag.String("issuer", "flopods-backend", "JWT issuer")
		retries = flag.Int("retries", 5, "reconnect attempts before giving up")
	)
	flag.Parse()

	if *userID == "" || *secret == "" {
		log.Fatal("both -user and -secret (or JWT_SECRET) are required")
	}

	jwtService := auth.NewJWTService(*secret, *issuer, time.Hour)
	token, err := jwtService.GenerateToken(*userID, *email)
	if err != nil {
		log.Fatalf("failed to mint token: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	client := wsclient.New(wsclient.Config{
		URL:        *url,
		Token:      token,
		MaxRetries: *retries,
	}, func(data []byte) {
		fmt.Println(string(data))
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("connection failed: %v", err)
	}
}

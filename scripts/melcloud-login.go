// melcloud-login exchanges MELCloud account credentials for a context key
// and writes it as credential state, so melbridge can start without
// performing a login of its own.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/melbridge/melbridge/internal/credstore"
	"github.com/melbridge/melbridge/internal/melcloud"
)

func main() {
	var (
		email    = flag.String("email", "", "MELCloud account email")
		password = flag.String("password", "", "MELCloud account password (falls back to MELCLOUD_PASSWORD)")
		baseURL  = flag.String("base-url", "", "Override the MELCloud API base URL")
		outPath  = flag.String("out", "/var/lib/melbridge/melcloud.json", "Output path for credential state")
		timeout  = flag.Int("timeout", 30, "Seconds to wait for the login")
	)
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("MELCLOUD_PASSWORD")
	}
	if *email == "" || *password == "" {
		fatal(errors.New("email and password are required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	var opts []melcloud.Option
	if *baseURL != "" {
		opts = append(opts, melcloud.WithBaseURL(*baseURL))
	}

	token, err := melcloud.Login(ctx, *email, *password, nil, opts...)
	if err != nil {
		fatal(err)
	}

	data, err := credstore.EncodeState(credstore.State{Token: token})
	if err != nil {
		fatal(err)
	}
	store := &credstore.FileStore{Path: *outPath}
	if err := store.Save(ctx, data); err != nil {
		fatal(err)
	}

	fmt.Printf("Wrote credential state to %s\n", *outPath)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

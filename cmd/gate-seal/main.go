// Command gate-seal encrypts a cookie pool file for ROBLOX_COOKIES_FILE
// using the key file later given to gate as ROBLOX_COOKIES_KEY_FILE.
//
//	gate-seal -key pool.key < cookies.json > cookies.sealed
//	gate-seal -key pool.key -open < cookies.sealed
package main

import (
	"flag"
	"io"
	"log"
	"os"

	"github.com/aussiebroadwan/gate/internal/gate/relay"
	"github.com/aussiebroadwan/gate/pkg/cryptox"
)

func main() {
	keyFile := flag.String("key", "", "key file (required)")
	open := flag.Bool("open", false, "decrypt instead of encrypt")
	flag.Parse()

	if *keyFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	key, err := cryptox.LoadSealKey(*keyFile)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	in, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	var out []byte
	if *open {
		out, err = cryptox.Open(key, in)
	} else {
		// Refuse to seal something gate could not load afterwards.
		if _, err = relay.ParsePool(in); err == nil {
			out, err = cryptox.Seal(key, in)
		}
	}
	if err != nil {
		log.Fatal(err)
	}

	if _, err := os.Stdout.Write(out); err != nil {
		log.Fatalf("write output: %v", err)
	}
}

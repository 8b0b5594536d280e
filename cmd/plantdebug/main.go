// Command plantdebug is an operator CLI over the plant state store,
// adapted from the teacher's cmd/debug: same flag-driven single-command
// shape (-db/-cmd plus command-specific flags), but against plantstore's
// opaque dump/fetch blob contract instead of a relational zone/system
// schema, since the core's persisted state (building-model filters, DHWT
// charge_yday) has no queryable structure of its own.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/oebus-project/rwchcd-go/internal/plantstore"
)

func main() {
	var dbPath, command, identifier, dataB64 string
	var version int64
	flag.StringVar(&dbPath, "db", "data/plant-state.db", "Path to the plant state store file")
	flag.StringVar(&command, "cmd", "", "Command to run: fetch, dump")
	flag.StringVar(&identifier, "id", "", "Blob identifier for fetch/dump")
	flag.Int64Var(&version, "version", 0, "Blob version for dump")
	flag.StringVar(&dataB64, "data", "", "Base64-encoded blob payload for dump")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of plantdebug:")
		fmt.Println("  -db string\tPath to the plant state store file (default 'data/plant-state.db')")
		fmt.Println("  -cmd string\tCommand to run: fetch, dump")
		fmt.Println("  -id string\tBlob identifier")
		fmt.Println("  -version int\tBlob version (dump)")
		fmt.Println("  -data string\tBase64-encoded blob payload (dump)")
		os.Exit(0)
	}

	store, err := plantstore.Open(dbPath)
	if err != nil {
		fmt.Printf("failed to open %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	switch command {
	case "fetch":
		if identifier == "" {
			fmt.Println("Error: -id is required")
			os.Exit(1)
		}
		v, data, ok, err := store.Fetch(identifier)
		if err != nil {
			fmt.Printf("fetch %s failed: %v\n", identifier, err)
			os.Exit(1)
		}
		if !ok {
			fmt.Printf("no blob stored under %q\n", identifier)
			os.Exit(1)
		}
		fmt.Printf("identifier=%s version=%d data=%s\n", identifier, v, base64.StdEncoding.EncodeToString(data))
	case "dump":
		if identifier == "" {
			fmt.Println("Error: -id is required")
			os.Exit(1)
		}
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			fmt.Printf("invalid -data: %v\n", err)
			os.Exit(1)
		}
		if err := store.Dump(identifier, version, data); err != nil {
			fmt.Printf("dump %s failed: %v\n", identifier, err)
			os.Exit(1)
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	fmt.Printf("Command %s completed successfully\n", command)
}

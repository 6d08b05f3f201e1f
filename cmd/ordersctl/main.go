package main

import (
	"fmt"
	"os"

	"github.com/artisan-market/api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ordersctl:", err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/finsift/finsift/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}

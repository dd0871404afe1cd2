package main

import (
	"os"

	"github.com/promogate/promogate/internal/app"
)

func main() {
	os.Exit(app.Main(os.Args))
}

package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/pumpgate-io/pumpgate/cmd/pumpgate/app"
)

func main() {
	app.Run()
}

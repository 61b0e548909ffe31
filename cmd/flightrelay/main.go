package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/flightrelay/cmd/flightrelay/app"
)

func main() {
	app.NewApp().Run()
}

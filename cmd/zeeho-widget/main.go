package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/bestk/zeeho-widgets/cmd/zeeho-widget/app"
)

func main() {
	app.NewApp().Run()
}

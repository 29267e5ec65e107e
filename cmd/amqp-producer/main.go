package main

import (
	"context"
	"os"

	"github.com/zoff-tech/amqp-producer/pkg/cli"
)

func main() {
	os.Exit(cli.DefaultApp().Execute(context.Background(), os.Args[1:]))
}

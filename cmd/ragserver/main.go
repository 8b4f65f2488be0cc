// Package main is the entry point for the RAG knowledge base service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/ragserver/cmd/ragserver/app"
)

func main() {
	app.NewApp().Run()
}

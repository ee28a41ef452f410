package main

import (
	"flag"
	"os"

	"github.com/louisbranch/raceline/internal/platform/config"
	"github.com/louisbranch/raceline/internal/tools/token"
)

func main() {
	cfg, err := token.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := token.Run(cfg, os.Stdout); err != nil {
		config.Exitf("mint token: %v", err)
	}
}

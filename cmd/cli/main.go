package main

import (
	"github.com/mchmarny/specqc/pkg/cli"
)

func main() {
	cli.Execute()
}

package main // Entry point package

import "github.com/iliyamo/spot-confirmation/internal/cli"

func main() {
	cli.Execute()
}

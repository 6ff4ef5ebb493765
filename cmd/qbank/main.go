package main

import (
	"os"

	"github.com/Albertdeng23/GEEQuestionBank/cmd/qbank/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

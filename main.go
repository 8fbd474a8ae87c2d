package main

import (
	"log/slog"

	"github.com/BioHazard786/flipboard/cmd"
	"github.com/BioHazard786/flipboard/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	cmd.Execute()
}

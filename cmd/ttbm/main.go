package main

import (
	"github.com/ytyou/ttbm/cmd/ttbm/cmd"
	"github.com/ytyou/ttbm/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	cmd.Execute()
}

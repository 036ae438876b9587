package main

import (
	"os"

	"github.com/santiagopena171/app-agenda/libs/runtime"
)

func main() {
	ctx, stop := runtime.SignalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

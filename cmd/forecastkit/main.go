package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/forecastkit/internal/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}

// hintFor returns the training hint for errors caused by a missing model or
// data file.
func hintFor(err error) string {
	var (
		missing     *models.MissingFileError
		unavailable *models.ModelUnavailableError
	)
	if errors.As(err, &missing) || errors.As(err, &unavailable) {
		return models.TrainingHint
	}
	return ""
}

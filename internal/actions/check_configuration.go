package actions

import (
	"context"
	"os/exec"

	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// CheckConfiguration runs the configuration fragment's optional validator
// script, if one was named, and maps a non-zero exit code through the
// configuration's results table into a BadConfiguration error (§4.6).
func CheckConfiguration(ctx context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		if uc.ValidatorPath == "" {
			return nil
		}

		cmd := exec.CommandContext(ctx, uc.ValidatorPath)
		cmd.Dir = uc.Location
		err := cmd.Run()
		if err == nil {
			return nil
		}

		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return err // failed to even start the validator - a resource error, not a BadConfiguration
		}

		code := exitErr.ExitCode()
		message, known := uc.ValidatorResults[code]
		if !known {
			message = "validator exited with an unmapped error code"
		}
		return &BadConfiguration{ExitCode: code, Message: message}
	})
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// errNotConfirmed is returned when a destructive command needs confirmation
// that cannot be obtained.
var errNotConfirmed = errors.New("confirmation required: stdin is not a terminal, pass --yes to proceed")

// confirm asks a yes/no question on the app's streams. An empty answer
// selects defaultYes. Unrecognized answers are asked again.
func (a *app) confirm(question string, defaultYes bool) (bool, error) {
	choices := "y/N"
	if defaultYes {
		choices = "Y/n"
	}

	for {
		a.printf("%s [%s]: ", question, choices)
		response, err := a.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && response != "") {
			if errors.Is(err, io.EOF) {
				a.println()
				return false, nil
			}
			return false, fmt.Errorf("failed to read input: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(response)) {
		case "":
			return defaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			a.println("Please answer y or n.")
		}
	}
}

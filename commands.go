package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/videomorph-dev/videomorph-sub000/converter"
	"github.com/videomorph-dev/videomorph-sub000/logging"
	"github.com/videomorph-dev/videomorph-sub000/profile"
)

func printQualities(store *profile.Store, locale string) {
	fmt.Println("Available qualities:")
	for _, fam := range store.ListQualities(locale) {
		fmt.Println()
		fmt.Printf("  %s\n", fam.Name)
		for _, q := range fam.Qualities {
			fmt.Printf("    %s\n", q)
		}
	}
}

func addPreset(store *profile.Store, args []string) error {
	if len(args) != 4 {
		return errors.New("-add-profile needs FAMILY QUALITY PARAMS EXTENSION")
	}
	err := store.Add(args[0], args[1], args[2], args[3])
	switch {
	case errors.Is(err, profile.ErrBlankFamily):
		return fmt.Errorf("FAMILY: %w", err)
	case errors.Is(err, profile.ErrBlankQuality):
		return fmt.Errorf("QUALITY: %w", err)
	case errors.Is(err, profile.ErrBlankParams):
		return fmt.Errorf("PARAMS: %w", err)
	case errors.Is(err, profile.ErrBadExtension):
		return fmt.Errorf("EXTENSION must be one of %s: %w", strings.Join(profile.VideoExtensions(), " "), err)
	}
	return err
}

// runHeadless starts the batch and prints its progress until it finishes.
// It returns the process exit code.
func runHeadless(conv *converter.Converter, log *logging.Logger) int {
	conv.Start()
	lastPct := -10
	for u := range conv.Updates() {
		switch u.Kind {
		case converter.TaskStarted:
			lastPct = -10
			fmt.Printf("Converting %s (%d/%d)\n", u.Name, u.Index+1, len(u.Tasks))
		case converter.Progress:
			if u.Operation/10 != lastPct/10 {
				lastPct = u.Operation
				fmt.Printf("  %3d%%  total %3d%%  bitrate %s  remaining %s\n",
					u.Operation, u.Process, u.Bitrate, u.OperationRemaining)
			}
		case converter.TaskFinished:
			fmt.Printf("  %s: %s\n", u.Name, u.Status)
		case converter.TaskFailed:
			fmt.Fprintf(os.Stderr, "  %s: %v\n", u.Name, u.Err)
		case converter.BatchFinished:
			return report(u.Summary, log)
		}
	}
	return 1
}

func report(s *converter.Summary, log *logging.Logger) int {
	fmt.Println()
	switch {
	case s.LibraryError != "":
		fmt.Fprintf(os.Stderr, "The conversion library has failed with error: %s\n", s.LibraryError)
	case s.AllStopped:
		fmt.Println("Conversion process stopped by the user")
	default:
		fmt.Println("Conversion process successfully finished!")
	}
	fmt.Printf("Done: %d  Stopped: %d  Failed: %d\n", s.Done, s.Stopped, s.Failed)
	for _, err := range s.Errors {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
	}
	log.LogTaskEvent("", "batch", "finished", map[string]interface{}{
		"done":    s.Done,
		"stopped": s.Stopped,
		"failed":  s.Failed,
	})
	if s.LibraryError != "" || s.Failed > 0 || s.Stopped > 0 {
		return 1
	}
	return 0
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/videomorph-dev/videomorph-sub000/codec"
	"github.com/videomorph-dev/videomorph-sub000/config"
	"github.com/videomorph-dev/videomorph-sub000/converter"
	"github.com/videomorph-dev/videomorph-sub000/logging"
	"github.com/videomorph-dev/videomorph-sub000/metrics"
	"github.com/videomorph-dev/videomorph-sub000/probe"
	"github.com/videomorph-dev/videomorph-sub000/profile"
	"github.com/videomorph-dev/videomorph-sub000/task"
	"github.com/videomorph-dev/videomorph-sub000/tui"
)

// fileList collects repeated -i flags.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	var inputs fileList
	flag.Var(&inputs, "i", "Input video file (repeatable)")
	dirFlag := flag.String("d", "", "Convert every video file found under this directory")
	outFlag := flag.String("o", "", "Output directory")
	qualityFlag := flag.String("quality", "", "Conversion quality, as printed by -list-qualities")
	tagFlag := flag.Bool("tag", false, "Prefix output names with the quality tag")
	subsFlag := flag.Bool("subtitles", false, "Burn a sidecar subtitle file into the video")
	deleteFlag := flag.Bool("delete-input", false, "Delete input files after a successful conversion")
	listQualities := flag.Bool("list-qualities", false, "List the available qualities and exit")
	addProfile := flag.Bool("add-profile", false, "Add a quality preset: -add-profile FAMILY QUALITY PARAMS EXTENSION")
	exportProfiles := flag.String("export-profiles", "", "Export the customized profiles to this directory and exit")
	importProfiles := flag.String("import-profiles", "", "Import a customized profiles file and exit")
	restoreProfiles := flag.Bool("restore-profiles", false, "Restore the shipped profiles and exit")
	noTUI := flag.Bool("no-tui", false, "Convert without the terminal interface")
	configFlag := flag.String("config", "", "Settings file (default ~/.videomorph/settings.yaml)")
	metricsFlag := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	// Custom usage
	flag.Usage = func() {
		fmt.Println("Usage: videomorph [options] [input-file...]")
		fmt.Println()
		fmt.Println("Converts batches of video files with FFmpeg using quality presets.")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  videomorph movie.mkv clip.avi                      # Convert two files")
		fmt.Println("  videomorph -d ~/Videos -o /tmp/out -no-tui         # Convert a whole directory")
		fmt.Println("  videomorph -quality \"DVD Fullscreen (4:3)\" -tag a.mkv")
		fmt.Println("  videomorph -add-profile MKV \"MKV Copy\" \"-c copy\" .mkv")
	}

	flag.Parse()

	platform := config.DetectPlatform()
	settingsPath := *configFlag
	if settingsPath == "" {
		settingsPath = platform.SettingsPath()
	}
	settings, err := config.Load(settingsPath, platform)
	if err != nil {
		fatal(err)
	}

	// Flags given on the command line win over the settings file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			settings.OutputDir = *outFlag
		case "quality":
			settings.Quality = *qualityFlag
		case "tag":
			settings.Tagged = *tagFlag
		case "subtitles":
			settings.Subtitles = *subsFlag
		case "delete-input":
			settings.DeleteInput = *deleteFlag
		case "metrics-addr":
			settings.MetricsAddr = *metricsFlag
		}
	})

	logCfg := logging.Config{Level: settings.Log.Level, Format: settings.Log.Format, Output: settings.Log.Output}
	if !*noTUI && (logCfg.Output == "" || logCfg.Output == "stdout" || logCfg.Output == "stderr") {
		// Anything written to the terminal would corrupt the interface.
		logCfg.Output = filepath.Join(platform.ConfigDir, "videomorph.log")
	}
	log, err := logging.NewLogger(logCfg)
	if err != nil {
		fatal(err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	encoderPath := resolveBinary(platform, settings.EncoderPath, "ffmpeg", "encoderPath")
	proberPath := resolveBinary(platform, settings.ProberPath, "ffprobe", "proberPath")

	store, err := profile.Open(profile.Options{
		Dir:       settings.ProfilesDir,
		SystemDir: platform.ProfilesDir,
		Logger:    log,
	})
	if err != nil {
		fatal(err)
	}

	// Without the tables every preset is offered.
	if avail, err := codec.Load(ctx, nil, encoderPath); err != nil {
		log.WarnWithErr("Cannot query installed codecs", err)
	} else {
		store.SetAvailability(avail)
	}

	switch {
	case *listQualities:
		printQualities(store, settings.Locale)
		return
	case *addProfile:
		exitOn(addPreset(store, flag.Args()))
		fmt.Println("Profile added")
		return
	case *exportProfiles != "":
		path, err := store.Export(*exportProfiles)
		exitOn(err)
		fmt.Printf("Profiles exported to %s\n", path)
		return
	case *importProfiles != "":
		exitOn(store.Import(*importProfiles))
		fmt.Println("Profiles imported")
		return
	case *restoreProfiles:
		exitOn(store.RestoreDefaults())
		fmt.Println("Default profiles restored")
		return
	}

	quality, err := store.Lookup(settings.Quality)
	if err != nil {
		fatal(fmt.Errorf("%w (see -list-qualities)", err))
	}

	paths := append([]string(nil), inputs...)
	paths = append(paths, flag.Args()...)
	if *dirFlag != "" {
		found, err := task.Discover(*dirFlag)
		if err != nil {
			fatal(err)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		fatal(fmt.Errorf("create output directory: %w", err))
	}

	list := task.NewList(settings.OutputDir)
	added, err := list.Populate(ctx, paths, probe.New(proberPath), quality, func(path string) {
		log.Debugf("Probing %s", path)
	})
	if err != nil {
		fatal(err)
	}
	for i := 0; i < added; i++ {
		metrics.RecordTaskAdded(true)
	}
	for _, path := range list.NotAdded() {
		metrics.RecordTaskAdded(false)
		log.WithField("file", path).Warn("File not added: duplicate or invalid video")
		if *noTUI {
			fmt.Fprintf(os.Stderr, "Skipping %s: duplicate or invalid video\n", path)
		}
	}
	if list.Len() == 0 {
		fatal(errors.New("no valid video files to convert"))
	}

	if settings.MetricsAddr != "" {
		srv := metrics.NewServer(settings.MetricsAddr)
		if err := srv.Start(nil); err != nil {
			fatal(err)
		}
		log.Infof("Metrics listening on %s", srv.Addr())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := store.Watch(ctx, func() { log.Info("Profiles changed on disk") }); err != nil {
		log.WarnWithErr("Cannot watch profiles", err)
	}

	conv := converter.New(encoderPath, list, converter.Options{
		Tagged:      settings.Tagged,
		Subtitles:   settings.Subtitles,
		DeleteInput: settings.DeleteInput,
		Threads:     config.ThreadCount(),
		Locale:      settings.Locale,
	}, log)

	runCtx, cancel := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		conv.Run(runCtx)
	}()

	code := 0
	if *noTUI {
		code = runHeadless(conv, log)
	} else {
		p := tea.NewProgram(tui.NewModel(conv, settings.OutputDir), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			code = 1
		}
	}

	cancel()
	<-runDone

	if err := config.Save(settingsPath, *settings); err != nil {
		log.WarnWithErr("Cannot save settings", err)
	}
	if code != 0 {
		log.Close()
		os.Exit(code)
	}
}

func resolveBinary(p config.Platform, override, name, key string) string {
	if override != "" {
		return override
	}
	path, err := p.LookupBinary(name)
	if err != nil {
		fatal(fmt.Errorf("%w: install FFmpeg or set %s in the settings", err, key))
	}
	return path
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func exitOn(err error) {
	if err != nil {
		fatal(err)
	}
}

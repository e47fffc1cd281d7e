package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/EzClassify/internal/audio"
	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/clipboard"
	"github.com/yok-tottii/EzClassify/internal/config"
	"github.com/yok-tottii/EzClassify/internal/i18n"
	"github.com/yok-tottii/EzClassify/internal/live"
	"github.com/yok-tottii/EzClassify/internal/logger"
	"github.com/yok-tottii/EzClassify/internal/permissions"
	"github.com/yok-tottii/EzClassify/internal/prefs"
	"github.com/yok-tottii/EzClassify/internal/recording"
	"github.com/yok-tottii/EzClassify/internal/samples"
	"github.com/yok-tottii/EzClassify/internal/training"
)

const version = "0.1.0"

var (
	configPathFlag string
	verboseFlag    bool
)

// App holds all application state
type App struct {
	logger     *logger.Logger
	config     *config.Config
	translator *i18n.Translator
	prefs      prefs.Store
	store      *samples.Store
	classifier *classifier.Client
	trainer    *training.Orchestrator
	clipboard  *clipboard.Manager

	// set by openAudio
	audioDriver *audio.PortAudioDriver
	recorder    *recording.Manager
	loop        *live.Loop
}

func init() {
	// macOS needs Cocoa calls (tray, hotkey) on the main thread
	runtime.LockOSThread()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ezclassify",
		Short:         "Record, label and classify audio against a remote two-class network",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configPathFlag, "config", "c", config.GetConfigPath(), "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "also log to stderr")

	rootCmd.AddCommand(
		newServeCmd(),
		newLiveCmd(),
		newRecordCmd(),
		newClassifyCmd(),
		newTrainCmd(),
		newInitCmd(),
		newSaveCmd(),
		newSamplesCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// newApp loads configuration and builds everything except the audio path
func newApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load(configPathFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = logger.ParseLevel(cfg.LogLevel)
	logConfig.Console = verboseFlag
	log, err := logger.New(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		logger:     log,
		config:     cfg,
		translator: i18n.NewTranslator(i18n.Language(cfg.UILanguage)),
		clipboard:  clipboard.NewManager(),
	}
	i18n.GlobalTranslator = app.translator

	log.Info("EzClassify v%s starting (server %s)", version, cfg.ServerURL)

	app.prefs, err = prefs.Open(ctx, cfg.Prefs)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}

	dataDir, err := cfg.GetDataDir()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	app.store = samples.NewStore(dataDir, app.prefs)

	app.classifier = classifier.New(classifier.Config{
		BaseURL:   cfg.ServerURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: "EzClassify/" + version,
	}, log.With("component", "classifier"))

	app.trainer = training.New(app.classifier, app.store, app.prefs, log.With("component", "training"))

	return app, nil
}

// openAudio initializes the microphone and the components that capture from it
func (a *App) openAudio() error {
	if err := permissions.Check(permissions.System()).Error(true, false); err != nil {
		if openErr := permissions.OpenMicrophoneSettings(); openErr != nil {
			a.logger.Debug("Failed to open privacy settings: %v", openErr)
		}
		return err
	}

	driver, err := audio.NewPortAudioDriver()
	if err != nil {
		return err
	}

	audioConfig := audio.DefaultConfig()
	audioConfig.DeviceID = a.config.AudioDeviceID
	if err := driver.Initialize(audioConfig); err != nil {
		driver.Close()
		return fmt.Errorf("failed to initialize audio device %d: %w", audioConfig.DeviceID, err)
	}
	a.logger.Info("Audio device %d initialized", audioConfig.DeviceID)

	a.audioDriver = driver
	a.recorder = recording.New(driver, recording.DefaultConfig(), a.logger.With("component", "recording"))
	a.loop = live.New(a.recorder, a.classifier, a.store.Scratch(), live.Config{
		CycleDuration:       a.config.CycleDuration(),
		ConfidenceThreshold: a.config.Live.ConfidenceThreshold,
	}, a.logger.With("component", "live"))

	return nil
}

// Close releases the audio device, preferences and log file
func (a *App) Close() {
	if a.loop != nil {
		if a.loop.Running() {
			a.loop.Stop()
		}
		a.loop.Wait()
	}
	if a.audioDriver != nil {
		if err := a.audioDriver.Close(); err != nil {
			a.logger.Warn("Failed to close audio driver: %v", err)
		}
	}
	if a.prefs != nil {
		if err := a.prefs.Close(); err != nil {
			a.logger.Warn("Failed to close preferences: %v", err)
		}
	}
	a.logger.Info("EzClassify stopped")
	a.logger.Close()
}

// withApp runs fn with a fully built App, optionally with audio
func withApp(cmd *cobra.Command, needAudio bool, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if needAudio {
		if err := app.openAudio(); err != nil {
			app.logger.Error("Audio unavailable: %v", err)
			return err
		}
	}

	return fn(ctx, app)
}

func (a *App) tf(key string, params map[string]string) string {
	return a.translator.TranslateWithFormat(key, params)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

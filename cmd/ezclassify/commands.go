package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stevedomin/termtable"

	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/clipboard"
	"github.com/yok-tottii/EzClassify/internal/config"
	"github.com/yok-tottii/EzClassify/internal/live"
	"github.com/yok-tottii/EzClassify/internal/samples"
	"github.com/yok-tottii/EzClassify/internal/training"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Create a new network on the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *App) error {
				name := ""
				if len(args) == 1 {
					name = args[0]
				}
				reply, err := app.trainer.InitNetwork(ctx, name)
				cmd.Println(reply)
				return err
			})
		},
	}
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Save the current network on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *App) error {
				reply, saved, err := app.trainer.SaveNetwork(ctx)
				cmd.Println(reply)
				if err != nil {
					return err
				}
				if !saved {
					app.logger.Warn("Save not confirmed by the server: %s", reply)
				}

				if name, ok, err := app.trainer.LastSavedNetwork(ctx); err == nil {
					if ok {
						cmd.Println(app.tf("network.last_saved", map[string]string{"name": name}))
					} else {
						cmd.Println(app.translator.Translate("network.none_saved"))
					}
				}
				return nil
			})
		},
	}
}

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Upload every labeled sample and train the network",
		Long: "Uploads class0 and class1 samples in one batch. When the server " +
			"reports success all local samples are deleted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *App) error {
				reply, err := app.trainer.TrainAll(ctx)
				if errors.Is(err, training.ErrNoSamples) {
					cmd.Println(app.translator.Translate("training.empty"))
					return err
				}

				if classifier.IsHTMLReply(reply) {
					cmd.PrintErrln("The server answered with an HTML page:")
				}
				cmd.Println(reply)
				if err != nil {
					return err
				}

				if classifier.IsTrainingSuccess(reply) {
					cmd.Println(app.translator.Translate("samples.deleted_all"))
				}
				return nil
			})
		},
	}
}

func newClassifyCmd() *cobra.Command {
	var copyResult bool

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify the most recent recording in the classify bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *App) error {
				sample, ok, err := app.store.MostRecent(samples.Classify)
				if err != nil {
					return err
				}
				if !ok {
					cmd.Println(app.translator.Translate("classify.no_audio"))
					return nil
				}

				result, err := app.classifier.Classify(ctx, sample)
				if err != nil {
					cmd.Println(app.tf("error.generic", map[string]string{"error": err.Error()}))
					return err
				}

				cmd.Println(app.tf("classify.result", map[string]string{"class": strconv.Itoa(result.Class)}))
				display := live.Render(result, app.config.Live.ConfidenceThreshold)
				cmd.Printf("%s (%s)\n", display.Label, display.Color)

				if copyResult {
					if err := app.clipboard.CopyResult(&result); err != nil {
						app.logger.Warn("Failed to copy result: %v", err)
						return err
					}
					cmd.Printf("Copied %q\n", clipboard.FormatResult(result))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&copyResult, "copy", false, "copy the result to the clipboard")
	return cmd
}

func newRecordCmd() *cobra.Command {
	var (
		bucketFlag string
		seconds    int
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a labeled sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := samples.ParseBucket(bucketFlag)
			if err != nil || bucket == samples.Temp {
				return fmt.Errorf("--class must be one of class0, class1, classify")
			}

			return withApp(cmd, true, func(ctx context.Context, app *App) error {
				if seconds == 0 {
					seconds = app.config.Record.DefaultSeconds
				}
				if !config.IsValidRecordDuration(seconds) {
					return fmt.Errorf("--duration must be one of %v", config.RecordDurations())
				}

				sample, err := app.store.NewSamplePath(bucket)
				if err != nil {
					return err
				}

				stopCountdown := countdown(cmd, app, time.Duration(seconds)*time.Second)
				err = app.recorder.Record(ctx, sample.Path, time.Duration(seconds)*time.Second)
				stopCountdown()
				if err != nil {
					return err
				}

				cmd.Println(app.tf("record.saved", map[string]string{
					"name":   sample.Name,
					"bucket": app.translator.Translate("samples." + string(bucket)),
				}))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&bucketFlag, "class", string(samples.Class0), "bucket to record into (class0, class1, classify)")
	cmd.Flags().IntVarP(&seconds, "duration", "d", 0, "sample length in seconds (5-60, step 5)")
	return cmd
}

// countdown prints the remaining time once a second until stopped
func countdown(cmd *cobra.Command, app *App, total time.Duration) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	deadline := time.Now().Add(total)

	go func() {
		defer close(finished)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			remaining := time.Until(deadline).Round(time.Second)
			if remaining < 0 {
				remaining = 0
			}
			cmd.PrintErrf("\r%s ", app.tf("record.remaining", map[string]string{
				"seconds": strconv.Itoa(int(remaining.Seconds())),
			}))

			select {
			case <-done:
				cmd.PrintErrln()
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func newLiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Classify the microphone continuously until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, app *App) error {
				app.loop.AddObserver(live.ObserverFunc(func(snap live.Snapshot) {
					status := app.translator.Translate("status." + strings.ToLower(snap.State.String()))
					switch {
					case snap.State == live.Failed:
						cmd.Printf("[%d] %s: %s\n", snap.Cycle, status, snap.Error)
					case snap.State == live.Interpreting:
						cmd.Printf("[%d] %s (%s)\n", snap.Cycle, snap.Display.Label, snap.Display.Color)
					default:
						app.logger.Debug("Live cycle %d: %s", snap.Cycle, status)
					}
				}))

				runID, err := app.loop.Start(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Live run %s started, press Ctrl+C to stop\n", runID)

				app.loop.Wait()
				return liveResult(app.loop.Snapshot())
			})
		},
	}
}

// liveResult turns the final snapshot of a run into the command's error
func liveResult(snap live.Snapshot) error {
	if snap.State != live.Failed {
		return nil
	}
	if snap.Error == "" {
		return errors.New("live classification failed")
	}
	return fmt.Errorf("live classification failed: %s", snap.Error)
}

func newSamplesCmd() *cobra.Command {
	samplesCmd := &cobra.Command{
		Use:   "samples",
		Short: "Manage recorded samples",
	}

	lsCmd := &cobra.Command{
		Use:   "ls [bucket]",
		Short: "List samples with their durations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buckets := samples.Buckets()
			if len(args) == 1 {
				bucket, err := samples.ParseBucket(args[0])
				if err != nil {
					return err
				}
				buckets = []samples.Bucket{bucket}
			}

			return withApp(cmd, false, func(ctx context.Context, app *App) error {
				for _, bucket := range buckets {
					list, err := app.store.List(bucket)
					if err != nil {
						return err
					}
					cmd.Printf("%s (%s)\n", app.translator.Translate("samples."+string(bucket)), bucket)
					if len(list) == 0 {
						cmd.Printf("  %s\n\n", app.translator.Translate("samples.empty"))
						continue
					}
					cmd.Println(sampleTable(app, list))
				}
				return nil
			})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <bucket> <index>",
		Short: "Delete one sample by its index in `samples ls`",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, index, err := parseSampleRef(args)
			if err != nil {
				return err
			}

			return withApp(cmd, false, func(ctx context.Context, app *App) error {
				sample, err := app.store.Get(bucket, index)
				if err != nil {
					return err
				}
				if err := app.store.Delete(bucket, index); err != nil {
					return err
				}
				cmd.Println(app.tf("samples.deleted", map[string]string{"name": sample.Name}))
				return nil
			})
		},
	}

	playCmd := &cobra.Command{
		Use:   "play <bucket> <index>",
		Short: "Play one sample through the default output device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, index, err := parseSampleRef(args)
			if err != nil {
				return err
			}

			return withApp(cmd, true, func(ctx context.Context, app *App) error {
				sample, err := app.store.Get(bucket, index)
				if err != nil {
					return err
				}
				cmd.Println(app.tf("samples.playing", map[string]string{"name": sample.Name}))
				return app.audioDriver.Play(ctx, sample.Path)
			})
		},
	}

	var assumeYes bool
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every sample and forget the last saved network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *App) error {
				if !assumeYes && !confirm(cmd, app.translator.Translate("samples.confirm_all")) {
					return nil
				}
				if err := app.store.DeleteAll(ctx); err != nil {
					return err
				}
				cmd.Println(app.translator.Translate("samples.deleted_all"))
				return nil
			})
		},
	}
	purgeCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	samplesCmd.AddCommand(lsCmd, rmCmd, playCmd, purgeCmd)
	return samplesCmd
}

// parseSampleRef reads the <bucket> <index> arguments of rm and play
func parseSampleRef(args []string) (samples.Bucket, int, error) {
	bucket, err := samples.ParseBucket(args[0])
	if err != nil {
		return "", 0, err
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid index %q", args[1])
	}
	return bucket, index, nil
}

func sampleTable(app *App, list []samples.Sample) string {
	t := termtable.NewTable(nil, &termtable.TableOptions{
		Padding:      2,
		UseSeparator: true,
	})
	t.SetHeader([]string{"#", app.translator.Translate("samples.name"), app.translator.Translate("samples.duration")})

	for i, sample := range list {
		duration := "-"
		if d, err := app.store.Duration(sample); err == nil {
			duration = formatSeconds(d)
		} else {
			app.logger.Warn("Failed to read %s: %v", sample.Path, err)
		}
		t.AddRow([]string{strconv.Itoa(i), sample.Name, duration})
	}

	return t.Render()
}

func confirm(cmd *cobra.Command, question string) bool {
	cmd.Printf("%s [y/N] ", question)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes" || answer == "s" || answer == "sim"
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPathFlag); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPathFlag)
			}
			if err := config.DefaultConfig().Save(configPathFlag); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", configPathFlag)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPathFlag)
			if err != nil {
				return err
			}
			cmd.Printf("server_url:       %s\n", cfg.ServerURL)
			cmd.Printf("data_dir:         %s\n", cfg.DataDir)
			cmd.Printf("live.cycle:       %v\n", cfg.CycleDuration())
			cmd.Printf("live.threshold:   %.2f\n", cfg.Live.ConfidenceThreshold)
			cmd.Printf("prefs.backend:    %s\n", cfg.Prefs.Backend)
			cmd.Printf("mqtt.broker:      %s\n", cfg.MQTT.Broker)
			cmd.Printf("api.port:         %d\n", cfg.API.Port)
			return nil
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yok-tottii/EzClassify/internal/api"
	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/hotkey"
	"github.com/yok-tottii/EzClassify/internal/permissions"
	"github.com/yok-tottii/EzClassify/internal/publish"
	"github.com/yok-tottii/EzClassify/internal/server"
	"github.com/yok-tottii/EzClassify/internal/tray"
)

func newServeCmd() *cobra.Command {
	var noTray bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tray app, the local control API and the MQTT publisher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, app *App) error {
				return app.serve(ctx, noTray)
			})
		},
	}

	cmd.Flags().BoolVar(&noTray, "no-tray", false, "run headless without the menu bar icon")
	return cmd
}

func (a *App) serve(ctx context.Context, noTray bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	srvConfig := server.DefaultConfig()
	srvConfig.Port = a.config.API.Port
	srv := server.New(srvConfig, a.logger.With("component", "server"))

	api.New(api.Deps{
		Live:       a.loop,
		Trainer:    a.trainer,
		Classifier: a.classifier,
		Recorder:   a.recorder,
		Player:     a.audioDriver,
		Store:      a.store,
		RunContext: gctx,
		Logger:     a.logger.With("component", "api"),
	}).RegisterRoutes(srv.Engine())

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if a.config.MQTT.Broker != "" {
		client, err := publish.Connect(publish.ClientConfig{
			Broker:   a.config.MQTT.Broker,
			ClientID: a.config.MQTT.ClientID,
			Username: a.config.MQTT.Username,
			Password: a.config.MQTT.Password,
		}, a.logger.With("component", "mqtt"))
		if err != nil {
			// live results still reach the tray and the API
			a.logger.Warn("MQTT publishing disabled: %v", err)
		} else {
			defer client.Disconnect(250)

			publisher := publish.NewPublisher(client, a.config.MQTT.Topic, a.logger.With("component", "mqtt"))
			a.loop.AddObserver(publisher)
			g.Go(func() error {
				return publisher.Start(gctx)
			})
		}
	}

	if noTray {
		a.logger.Info("Running headless, control API at %s", srv.URL())
		a.startHotkey(gctx, g)
		return g.Wait()
	}

	var trayMgr *tray.Manager
	trayMgr = tray.NewManager(tray.Config{
		Translator: a.translator,
		Logger:     a.logger.With("component", "tray"),
		OnReady: func() {
			a.startHotkey(gctx, g)
		},
		OnToggleLive: func() {
			if err := a.loop.Toggle(gctx); err != nil {
				a.logger.Warn("Failed to toggle live classification: %v", err)
			}
		},
		OnTrain: func() {
			go a.trainFromTray(gctx, trayMgr)
		},
		OnSave: func() {
			go a.saveFromTray(gctx, trayMgr)
		},
		OnCopyResult: func() {
			snap := a.loop.Snapshot()
			if err := a.clipboard.CopyResult(snap.Result); err != nil {
				a.logger.Warn("Failed to copy result: %v", err)
			}
		},
		OnQuit: cancel,
	})
	a.loop.AddObserver(trayMgr)

	go func() {
		<-gctx.Done()
		trayMgr.Quit()
	}()

	// blocks until the tray quits
	trayMgr.Run()
	cancel()

	return g.Wait()
}

// startHotkey registers the live toggle hotkey when enabled. Failures are
// logged; the rest of the app keeps running.
func (a *App) startHotkey(ctx context.Context, g *errgroup.Group) {
	if !a.config.Hotkey.Enabled {
		return
	}

	hkConfig, err := hotkey.FromConfig(a.config.Hotkey)
	if err != nil {
		a.logger.Warn("Invalid hotkey configuration: %v", err)
		return
	}
	for _, conflict := range hotkey.CheckConflicts(hkConfig.Modifiers, hkConfig.Key) {
		a.logger.Warn("Hotkey %s conflicts with %s (%s)", hkConfig, conflict.Name, conflict.Description)
	}

	if err := permissions.Check(permissions.System()).Error(false, true); err != nil {
		a.logger.Warn("Hotkey disabled: %v", err)
		if openErr := permissions.OpenAccessibilitySettings(); openErr != nil {
			a.logger.Debug("Failed to open privacy settings: %v", openErr)
		}
		return
	}

	mgr := hotkey.New()
	if err := mgr.Register(hkConfig); err != nil {
		a.logger.Error("Failed to register hotkey: %v", err)
		return
	}
	a.logger.Info("Hotkey %s toggles live classification", hkConfig)

	g.Go(func() error {
		defer mgr.Close()
		mgr.Run(ctx, func() {
			if err := a.loop.Toggle(ctx); err != nil {
				a.logger.Warn("Failed to toggle live classification: %v", err)
			}
		})
		return nil
	})
}

type notifier interface {
	ShowError(message string)
	ShowSuccess(message string)
}

func (a *App) trainFromTray(ctx context.Context, n notifier) {
	reply, err := a.trainer.TrainAll(ctx)
	switch {
	case err != nil:
		a.logger.Error("Training failed: %v", err)
	case !classifier.IsTrainingSuccess(reply):
		a.logger.Warn("Training rejected: %s", reply)
	default:
		a.logger.Info("Training finished")
	}
	if err != nil || !classifier.IsTrainingSuccess(reply) {
		n.ShowError(trayReply(reply, err))
		return
	}
	n.ShowSuccess(reply)
}

func (a *App) saveFromTray(ctx context.Context, n notifier) {
	reply, saved, err := a.trainer.SaveNetwork(ctx)
	if err != nil {
		a.logger.Error("Saving network failed: %v", err)
		n.ShowError(trayReply(reply, err))
		return
	}
	if !saved {
		a.logger.Warn("Save not confirmed by the server: %s", reply)
		n.ShowError(trayReply(reply, nil))
		return
	}
	n.ShowSuccess(reply)
}

func trayReply(reply string, err error) string {
	if reply != "" && !classifier.IsHTMLReply(reply) {
		return reply
	}
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("unexpected server reply (%d bytes)", len(reply))
}

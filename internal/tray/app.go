package tray

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/DeviceHub/internal/agent"
	"github.com/NowakAdmin/DeviceHub/internal/autostart"
	"github.com/NowakAdmin/DeviceHub/internal/center"
	"github.com/NowakAdmin/DeviceHub/internal/version"
)

const appName = "DeviceHub"

var (
	teal = color.RGBA{0, 128, 128, 255}
	gray = color.RGBA{128, 128, 128, 255}
)

type App struct {
	center *center.Center
	agent  *agent.Agent
	logger zerolog.Logger
	// onExit runs after the tray loop ends, before the process exits.
	onExit func()

	mu      sync.Mutex
	devices map[string]*systray.MenuItem
}

func New(c *center.Center, agentInstance *agent.Agent, logger zerolog.Logger, onExit func()) *App {
	return &App{
		center:  c,
		agent:   agentInstance,
		logger:  logger.With().Str("component", "tray").Logger(),
		onExit:  onExit,
		devices: make(map[string]*systray.MenuItem),
	}
}

func (a *App) Run() {
	systray.Run(a.onReady, a.exit)
}

func (a *App) onReady() {
	systray.SetIcon(generateIcon(16, gray))
	systray.SetTitle("DeviceHub")
	systray.SetTooltip("DeviceHub - wagi, skanery i drukarki")

	status := systray.AddMenuItem("Serwer: offline", "Status połączenia z serwerem")
	status.Disable()

	start := systray.AddMenuItem("Połącz z serwerem", "Uruchom agenta")
	stop := systray.AddMenuItem("Rozłącz", "Zatrzymaj agenta")
	if a.agent.IsRunning() {
		start.Disable()
	} else {
		stop.Disable()
	}

	systray.AddSeparator()
	devicesMenu := systray.AddMenuItem("Urządzenia", "Otwórz lub zamknij urządzenie")
	for _, info := range a.center.Devices() {
		a.addDevice(devicesMenu, info)
	}
	if len(a.center.Devices()) == 0 {
		devicesMenu.Disable()
	}

	systray.AddSeparator()
	autostartItem := systray.AddMenuItemCheckbox("Autostart (Windows)", "Uruchamiaj przy logowaniu", false)
	enabled, err := autostart.IsEnabled(appName)
	if err == nil && enabled {
		autostartItem.Check()
	}

	versionItem := systray.AddMenuItem("Wersja: "+version.Version, "Wersja programu")
	versionItem.Disable()

	systray.AddSeparator()
	quit := systray.AddMenuItem("Zamknij", "Zamknij DeviceHub")

	go a.followDevices()

	go func() {
		for {
			select {
			case <-start.ClickedCh:
				if a.agent.IsRunning() {
					continue
				}
				if startErr := a.agent.Start(context.Background()); startErr != nil {
					a.logger.Error().Err(startErr).Msg("Błąd startu agenta")
					continue
				}
				status.SetTitle("Serwer: łączenie")
				start.Disable()
				stop.Enable()

			case <-stop.ClickedCh:
				a.agent.Stop()
				status.SetTitle("Serwer: offline")
				start.Enable()
				stop.Disable()

			case <-autostartItem.ClickedCh:
				if autostartItem.Checked() {
					if disableErr := autostart.Disable(appName); disableErr != nil {
						a.logger.Error().Err(disableErr).Msg("Błąd wyłączenia autostartu")
						continue
					}
					autostartItem.Uncheck()
					continue
				}

				entry, entryErr := autostart.Current(appName)
				if entryErr != nil {
					a.logger.Error().Err(entryErr).Msg("Błąd ścieżki EXE")
					continue
				}
				if enableErr := autostart.Enable(entry); enableErr != nil {
					a.logger.Error().Err(enableErr).Msg("Błąd autostartu")
					continue
				}
				autostartItem.Check()

			case <-quit.ClickedCh:
				systray.Quit()
				return
			}

			if a.agent.IsRunning() && a.agent.IsConnected() {
				status.SetTitle("Serwer: online")
			}
		}
	}()
}

func (a *App) addDevice(parent *systray.MenuItem, info center.DeviceInfo) {
	name := info.Device.Name
	item := parent.AddSubMenuItemCheckbox(deviceLabel(info.Device.Name, info.Connected), info.Device.String(), info.Connected)
	if !info.Finalized {
		item.Disable()
	}

	a.mu.Lock()
	a.devices[name] = item
	a.mu.Unlock()

	go func() {
		for range item.ClickedCh {
			if item.Checked() {
				a.center.CloseDevice(name)
			} else {
				a.center.OpenDevice(name)
			}
		}
	}()
}

// followDevices keeps the device items and the icon in step with the
// device status events.
func (a *App) followDevices() {
	sub := a.center.Subscribe()
	for ev := range sub.C() {
		if ev.Kind != center.KindStatus {
			continue
		}

		a.mu.Lock()
		item, ok := a.devices[ev.Device]
		a.mu.Unlock()
		if !ok {
			continue
		}

		item.SetTitle(deviceLabel(ev.Device, ev.Connected))
		if ev.Connected {
			item.Check()
		} else {
			item.Uncheck()
		}
		systray.SetIcon(generateIcon(16, iconColor(a.connectedCount())))
	}
}

func (a *App) connectedCount() int {
	n := 0
	for _, info := range a.center.Devices() {
		if info.Connected {
			n++
		}
	}
	return n
}

func (a *App) exit() {
	a.agent.Stop()
	if a.onExit != nil {
		a.onExit()
	}
}

func deviceLabel(name string, connected bool) string {
	state := "zamknięte"
	if connected {
		state = "połączone"
	}
	return fmt.Sprintf("%s (%s)", name, state)
}

func iconColor(connected int) color.RGBA {
	if connected > 0 {
		return teal
	}
	return gray
}

// generateIcon draws a size x size PNG: a framed square in fg on white.
func generateIcon(size int, fg color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	white := color.RGBA{255, 255, 255, 255}
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.SetRGBA(x, y, white)
		}
	}

	margin := size / 6
	for x := 0; x < size; x++ {
		img.SetRGBA(x, margin, fg)
		img.SetRGBA(x, size-margin-1, fg)
	}
	for y := margin; y < size-margin; y++ {
		img.SetRGBA(margin, y, fg)
		img.SetRGBA(size-margin-1, y, fg)
	}

	innerMargin := margin + 1
	for x := innerMargin; x < size-innerMargin; x++ {
		for y := innerMargin + 2; y < size-innerMargin-2; y++ {
			img.SetRGBA(x, y, fg)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

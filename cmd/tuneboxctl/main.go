// Package main provides the tunebox remote control CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/tunebox/internal/api/connect"
)

var (
	app     = kingpin.New("tuneboxctl", "tunebox remote control client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Remote token (or set TUNEBOX_REMOTE_TOKEN env)").Envar("TUNEBOX_REMOTE_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	playCmd   = app.Command("play", "Resume playback")
	pauseCmd  = app.Command("pause", "Pause playback")
	toggleCmd = app.Command("toggle", "Toggle play/pause")
	nextCmd   = app.Command("next", "Skip to the next track")
	prevCmd   = app.Command("prev", "Go back to the previous track").Alias("previous")

	seekCmd      = app.Command("seek", "Seek within the current track")
	seekPosition = seekCmd.Arg("position", "Position, e.g. 1m30s").Required().Duration()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()

	repeatCmd  = app.Command("repeat", "Cycle repeat mode (off, all, one)")
	shuffleCmd = app.Command("shuffle", "Shuffle the queue")
	queueCmd   = app.Command("queue", "List the queue")
	nowCmd     = app.Command("now", "Show what is playing").Alias("status")
	watchCmd   = app.Command("watch", "Stream now-playing updates")

	findCmd      = app.Command("find", "Search interactively and queue results")
	findDebounce = findCmd.Flag("debounce", "Quiet period before a search runs").Default("300ms").Duration()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewRemoteClient(http.DefaultClient, strings.TrimRight(*server, "/"), *token)

	// watch and find run until interrupted
	switch command {
	case watchCmd.FullCommand():
		watch(client)
		return
	case findCmd.FullCommand():
		find(client, *findDebounce, os.Stdin, os.Stdout)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch command {
	case playCmd.FullCommand():
		err = client.Play(ctx)
	case pauseCmd.FullCommand():
		err = client.Pause(ctx)
	case toggleCmd.FullCommand():
		err = client.TogglePlay(ctx)
	case nextCmd.FullCommand():
		err = client.Next(ctx)
	case prevCmd.FullCommand():
		err = client.Previous(ctx)
	case seekCmd.FullCommand():
		err = client.Seek(ctx, *seekPosition)
	case volumeCmd.FullCommand():
		var v float64
		if v, err = client.SetVolume(ctx, *volumeLevel); err == nil {
			fmt.Printf("Volume: %.0f%%\n", v*100)
		}
	case repeatCmd.FullCommand():
		var mode string
		if mode, err = client.CycleRepeat(ctx); err == nil {
			fmt.Printf("Repeat: %s\n", mode)
		}
	case shuffleCmd.FullCommand():
		var on bool
		if on, err = client.Shuffle(ctx); err == nil {
			fmt.Printf("Shuffle: %s\n", onOff(on))
		}
	case queueCmd.FullCommand():
		err = listQueue(ctx, client)
	case nowCmd.FullCommand():
		var np *structpb.Struct
		if np, err = client.NowPlaying(ctx); err == nil {
			printNowPlaying(np)
		}
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func listQueue(ctx context.Context, client *apiconnect.RemoteClient) error {
	tracks, err := client.Queue(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Queue (%d):\n", len(tracks))
	for i, t := range tracks {
		fmt.Printf("  %2d. %s\n", i+1, formatTrack(t))
	}
	return nil
}

func watch(client *apiconnect.RemoteClient) {
	err := client.WatchNowPlaying(context.Background(), func(np *structpb.Struct) {
		fmt.Printf("[%s] ", time.Now().Format("15:04:05"))
		printNowPlaying(np)
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printNowPlaying(np *structpb.Struct) {
	f := np.GetFields()
	t := f["track"].GetStructValue()
	if t == nil {
		fmt.Printf("Nothing playing (queue: %d)\n", int(f["queue_length"].GetNumberValue()))
		return
	}
	pos := time.Duration(f["position_ms"].GetNumberValue()) * time.Millisecond
	length := time.Duration(t.GetFields()["duration_ms"].GetNumberValue()) * time.Millisecond
	fmt.Printf("%s %s [%s/%s] repeat=%s shuffle=%s volume=%.0f%% queue=%d\n",
		statusIcon(f["status"].GetStringValue()),
		formatTrack(t),
		formatDuration(pos), formatDuration(length),
		f["repeat"].GetStringValue(),
		onOff(f["shuffle"].GetBoolValue()),
		f["volume"].GetNumberValue()*100,
		int(f["queue_length"].GetNumberValue()),
	)
}

func formatTrack(t *structpb.Struct) string {
	f := t.GetFields()
	artist := f["artist"].GetStructValue().GetFields()["name"].GetStringValue()
	return fmt.Sprintf("%s - %s", artist, f["title"].GetStringValue())
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func statusIcon(status string) string {
	switch status {
	case "playing":
		return "▶"
	case "paused":
		return "⏸"
	default:
		return "⏹"
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"runtime"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go2tv.app/castbridge/bridge"
	"go2tv.app/castbridge/devices"
	"go2tv.app/castbridge/utils"
)

func listFlagFunction(w io.Writer, devs []devices.Device) error {
	if len(devs) == 0 {
		return errors.New("no Chromecast devices found")
	}
	fmt.Fprintln(w)

	boldStart := ""
	boldEnd := ""

	if runtime.GOOS == "linux" {
		boldStart = "\033[1m"
		boldEnd = "\033[0m"
	}

	for i, dev := range devs {
		kind := "Video"
		if dev.IsAudioOnly {
			kind = "Audio"
		}

		fmt.Fprintf(w, "%sDevice %v%s\n", boldStart, i+1, boldEnd)
		fmt.Fprintf(w, "%s--------%s\n", boldStart, boldEnd)
		fmt.Fprintf(w, "%sName:%s %s\n", boldStart, boldEnd, dev.Name)
		fmt.Fprintf(w, "%sAddr:%s %s\n", boldStart, boldEnd, dev.Addr)
		fmt.Fprintf(w, "%sType:%s %s\n", boldStart, boldEnd, kind)
		fmt.Fprintln(w)
	}

	return nil
}

func checkMediaFlag(cliCtx *cli.Context) (string, error) {
	media := cliCtx.String("media")
	if media == "" {
		return "", errors.New("no media URL defined")
	}

	u, err := url.ParseRequestURI(media)
	if err != nil {
		return "", errors.Wrap(err, "invalid media URL")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Errorf("media URL must be http or https, got %q", u.Scheme)
	}

	return media, nil
}

// descriptorFromFlags builds the media descriptor from the media flags.
// contentType is used when the flag is not set. Position and duration
// flags are in seconds.
func descriptorFromFlags(cliCtx *cli.Context, media, contentType string) (bridge.MediaDescriptor, error) {
	d := bridge.MediaDescriptor{
		MediaURL:    media,
		Title:       cliCtx.String("title"),
		Subtitle:    cliCtx.String("subtitle"),
		PosterURL:   cliCtx.String("poster"),
		ContentType: cliCtx.String("content-type"),
	}

	if d.Title == "" {
		d.Title = utils.TitleFromURL(media)
	}

	if d.ContentType == "" {
		d.ContentType = contentType
	}

	if cliCtx.IsSet("position") {
		pos := cliCtx.Int("position")
		if pos < 0 {
			return bridge.MediaDescriptor{}, errors.New("position can't be negative")
		}
		ms := int64(pos) * 1000
		d.Position = &ms
	}

	if cliCtx.IsSet("duration") {
		ms := int64(math.Round(cliCtx.Float64("duration") * 1000))
		d.Duration = &ms
	}

	if custom := cliCtx.String("custom"); custom != "" {
		if err := json.Unmarshal([]byte(custom), &d.CustomData); err != nil {
			return bridge.MediaDescriptor{}, errors.Wrap(err, "custom data must be a JSON object")
		}
	}

	return d, nil
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
)

var errUsage = errors.New("usage")

type commandKind int

const (
	cmdSay commandKind = iota
	cmdLeave
	cmdTyping
	cmdLocation
	cmdRead
	cmdPause
	cmdResume
	cmdQuit
)

type command struct {
	kind   commandKind
	text   string
	typing bool
	point  geomodel.Point
}

// parseCommand turns one stdin line into a command. Lines that do not start
// with a slash are chat messages.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, text: line}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/leave":
		return command{kind: cmdLeave}, nil
	case "/read":
		return command{kind: cmdRead}, nil
	case "/pause":
		return command{kind: cmdPause}, nil
	case "/resume":
		return command{kind: cmdResume}, nil
	case "/quit":
		return command{kind: cmdQuit}, nil
	case "/typing":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return command{}, fmt.Errorf("%w: /typing on|off", errUsage)
		}
		return command{kind: cmdTyping, typing: fields[1] == "on"}, nil
	case "/loc":
		if len(fields) != 3 {
			return command{}, fmt.Errorf("%w: /loc <lat> <lng>", errUsage)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || lat < -90 || lat > 90 {
			return command{}, fmt.Errorf("%w: latitude must be between -90 and 90", errUsage)
		}
		lng, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || lng < -180 || lng > 180 {
			return command{}, fmt.Errorf("%w: longitude must be between -180 and 180", errUsage)
		}
		return command{kind: cmdLocation, point: geomodel.Point{Lat: lat, Lng: lng}}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s", fields[0])
	}
}

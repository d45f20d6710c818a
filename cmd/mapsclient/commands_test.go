package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		want command
	}{
		{line: "hello there", want: command{kind: cmdSay, text: "hello there"}},
		{line: "  /leave ", want: command{kind: cmdLeave}},
		{line: "/typing on", want: command{kind: cmdTyping, typing: true}},
		{line: "/typing off", want: command{kind: cmdTyping}},
		{line: "/loc -34.6 -58.4", want: command{kind: cmdLocation, point: geomodel.Point{Lat: -34.6, Lng: -58.4}}},
		{line: "/read", want: command{kind: cmdRead}},
		{line: "/pause", want: command{kind: cmdPause}},
		{line: "/resume", want: command{kind: cmdResume}},
		{line: "/quit", want: command{kind: cmdQuit}},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			got, err := parseCommand(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCommandRejectsBadInput(t *testing.T) {
	for _, line := range []string{"/typing", "/typing maybe", "/loc 1", "/loc 91 0", "/loc 0 east"} {
		_, err := parseCommand(line)
		assert.ErrorIs(t, err, errUsage, line)
	}

	_, err := parseCommand("/dance")
	assert.EqualError(t, err, "unknown command /dance")
}

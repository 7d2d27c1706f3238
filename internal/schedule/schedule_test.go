package schedule

import (
	"reflect"
	"testing"
	"time"

	"github.com/psantana5/svcguard/internal/logging"
)

func TestNewRegistrarIntervalFloor(t *testing.T) {
	log := logging.New("test", logging.ERROR, false)

	r := NewRegistrar(10*time.Second, log)
	if r.interval != time.Minute {
		t.Errorf("Sub-minute interval should clamp to 1m, got %s", r.interval)
	}

	r = NewRegistrar(5*time.Minute, log)
	if r.interval != 5*time.Minute {
		t.Errorf("Interval changed: %s", r.interval)
	}
}

func TestCronMinutes(t *testing.T) {
	cases := []struct {
		interval time.Duration
		want     int
	}{
		{30 * time.Second, 1},
		{time.Minute, 1},
		{5 * time.Minute, 5},
		{7 * time.Minute, 6},
		{45 * time.Minute, 30},
		{time.Hour, 60},
		{90 * time.Minute, 60},
	}
	for _, tc := range cases {
		if got := cronMinutes(tc.interval); got != tc.want {
			t.Errorf("cronMinutes(%s) = %d, want %d", tc.interval, got, tc.want)
		}
	}
}

func TestWithoutMarkerBlock(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name: "removes marker and its entry",
			lines: []string{
				"0 * * * * /usr/bin/backup",
				cronMarker,
				"*/5 * * * * /usr/local/bin/svcguard check >/dev/null 2>&1",
				"30 2 * * * /usr/bin/logrotate",
			},
			want: []string{
				"0 * * * * /usr/bin/backup",
				"30 2 * * * /usr/bin/logrotate",
			},
		},
		{
			name:  "no marker present",
			lines: []string{"0 * * * * /usr/bin/backup"},
			want:  []string{"0 * * * * /usr/bin/backup"},
		},
		{
			name: "marker at end",
			lines: []string{
				"0 * * * * /usr/bin/backup",
				cronMarker,
				"*/5 * * * * /usr/local/bin/svcguard check",
			},
			want: []string{"0 * * * * /usr/bin/backup"},
		},
		{
			name:  "only the marker block",
			lines: []string{cronMarker, "*/5 * * * * /usr/local/bin/svcguard check"},
			want:  nil,
		},
		{
			name:  "leading blank lines dropped",
			lines: []string{"", cronMarker, "*/1 * * * * x check"},
			want:  nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := withoutMarkerBlock(tc.lines)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

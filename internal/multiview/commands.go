package multiview

import (
	"sort"
	"strconv"
	"strings"
)

// numWindows is the window count of the UHD-401MV.
const numWindows = 4

// paramRange bounds one positional wire parameter (inclusive).
type paramRange struct {
	min int
	max int
}

// observeFunc extracts a cache observation from one response line. params
// are the request parameters (nil for unsolicited lines); ok is false when
// the line carries no recognisable value for this entry.
type observeFunc func(params []int, line string) (key, value string, ok bool)

// commandSpec is one entry in the device command table.
type commandSpec struct {
	// template is the wire line with one %d verb per parameter; the codec
	// appends the terminator.
	template string

	// params bounds each positional parameter in order.
	params []paramRange

	// expect lists the expected response line prefixes, one entry per line,
	// matched case-insensitively. An empty prefix accepts any line; most of
	// the device's response formats are undocumented and correlation is
	// positional anyway. nil means a single unconstrained line.
	expect []string

	// expectFor overrides expect based on the encoded parameters, for
	// commands whose response shape depends on the argument: powering on
	// emits the boot banner, powering off answers in one line.
	expectFor func(params []int) []string

	// observe extracts a cache update from each consumed response line.
	observe observeFunc
}

// bootSequence is the three-line banner the device emits while powering on.
// The power-on command resolves only after the final line.
var bootSequence = []string{"power on", "system initializing", "initialization finished"}

// restartSequence covers reboot and factory reset: an echo line of the
// device's choosing, then the boot banner tail.
var restartSequence = []string{"", "system initializing", "initialization finished"}

// commandTable maps logical command names to wire templates, parameter
// ranges, and response handling. Derived from the UHD-401MV RS-232 command
// set. `help` is deliberately absent: its response is an unbounded usage
// dump that cannot be correlated against a fixed line count.
var commandTable = map[string]commandSpec{
	// System.
	"device.type":     {template: "r type", observe: observeRaw("device.type")},
	"device.firmware": {template: "r fw version", observe: observeRaw("device.firmware")},
	"power": {
		template: "power %d",
		params:   []paramRange{{0, 1}},
		expect:   []string{"power"},
		expectFor: func(params []int) []string {
			if len(params) == 1 && params[0] == 1 {
				return bootSequence
			}
			return nil
		},
		observe: observePower,
	},
	"power.query": {template: "r power", expect: []string{"power"}, observe: observePower},
	"reboot":      {template: "reboot", expect: restartSequence},
	"reset":       {template: "reset", expect: restartSequence},

	// Output.
	"output.resolution": {
		template: "s output res %d",
		params:   []paramRange{{1, 14}},
		observe:  observeTextAfter("output.resolution", "resolution:"),
	},
	"output.resolution.query": {
		template: "r output res",
		observe:  observeTextAfter("output.resolution", "resolution:"),
	},
	"output.hdcp":       {template: "s output hdcp %d", params: []paramRange{{1, 3}}, observe: observeHDCP},
	"output.hdcp.query": {template: "r output hdcp", observe: observeHDCP},
	"output.vka":        {template: "s output vka %d", params: []paramRange{{1, 2}}, observe: observeVKA},
	"output.vka.query":  {template: "r output vka", observe: observeVKA},
	"output.itc":        {template: "s output itc %d", params: []paramRange{{1, 2}}, observe: observeITC},
	"output.itc.query":  {template: "r output itc", observe: observeITC},
	"input.edid":        {template: "s input EDID %d", params: []paramRange{{1, 18}}, observe: observeRaw("input.edid")},
	"input.edid.query":  {template: "r input EDID", observe: observeRaw("input.edid")},

	// Audio.
	"output.audio":            {template: "s output audio %d", params: []paramRange{{0, 4}}, observe: observeAudioSource},
	"output.audio.query":      {template: "r output audio", observe: observeAudioSource},
	"output.audio.vol+":       {template: "s output audio vol+", observe: observeVolume},
	"output.audio.vol-":       {template: "s output audio vol-", observe: observeVolume},
	"output.audio.vol":        {template: "s output audio vol %d", params: []paramRange{{0, 100}}, observe: observeVolume},
	"output.audio.vol.query":  {template: "r output audio vol", observe: observeVolume},
	"output.audio.mute":       {template: "s output audio mute %d", params: []paramRange{{0, 1}}, observe: observeMute},
	"output.audio.mute.query": {template: "r output audio mute", observe: observeMute},

	// Switching.
	"auto.switch":        {template: "s auto switch %d", params: []paramRange{{0, 1}}, observe: observeAutoSwitch},
	"auto.switch.query":  {template: "r auto switch", observe: observeAutoSwitch},
	"input.source":       {template: "s in source %d", params: []paramRange{{1, 4}}, observe: observeInput("input.source")},
	"input.source.query": {template: "r in source", observe: observeInput("input.source")},

	// Multiview layout.
	"multiview":       {template: "s multiview %d", params: []paramRange{{1, 5}}, observe: observeMultiview},
	"multiview.query": {template: "r multiview", observe: observeMultiview},
	"window.input": {
		template: "s window %d in %d",
		params:   []paramRange{{1, numWindows}, {1, 4}},
		observe:  observeWindowInput,
	},
	"window.input.query": {
		template: "r window %d in",
		params:   []paramRange{{1, numWindows}},
		observe:  observeWindowInput,
	},
	"window.input.query.all": {
		template: "r window 0 in",
		expect:   []string{"window", "window", "window", "window"},
		observe:  observeWindowInput,
	},

	// PIP / PBP / triple / quad.
	"pip.position":        {template: "s PIP position %d", params: []paramRange{{1, 4}}, observe: observePIPPosition},
	"pip.position.query":  {template: "r PIP position", observe: observePIPPosition},
	"pip.size":            {template: "s PIP size %d", params: []paramRange{{1, 3}}, observe: observePIPSize},
	"pip.size.query":      {template: "r PIP size", observe: observePIPSize},
	"pbp.mode":            {template: "s PBP mode %d", params: []paramRange{{1, 2}}, observe: observeMode("pbp.mode")},
	"pbp.mode.query":      {template: "r PBP mode", observe: observeMode("pbp.mode")},
	"pbp.aspect":          {template: "s PBP aspect %d", params: []paramRange{{1, 2}}, observe: observeAspect("pbp.aspect")},
	"pbp.aspect.query":    {template: "r PBP aspect", observe: observeAspect("pbp.aspect")},
	"triple.mode":         {template: "s triple mode %d", params: []paramRange{{1, 2}}, observe: observeMode("triple.mode")},
	"triple.mode.query":   {template: "r triple mode", observe: observeMode("triple.mode")},
	"triple.aspect":       {template: "s triple aspect %d", params: []paramRange{{1, 2}}, observe: observeAspect("triple.aspect")},
	"triple.aspect.query": {template: "r triple aspect", observe: observeAspect("triple.aspect")},
	"quad.mode":           {template: "s quad mode %d", params: []paramRange{{1, 2}}, observe: observeMode("quad.mode")},
	"quad.mode.query":     {template: "r quad mode", observe: observeMode("quad.mode")},
	"quad.aspect":         {template: "s quad aspect %d", params: []paramRange{{1, 2}}, observe: observeAspect("quad.aspect")},
	"quad.aspect.query":   {template: "r quad aspect", observe: observeAspect("quad.aspect")},
}

// unsolicitedObservers are tried in order against lines that arrive with no
// pending request. Only distinctive patterns are included; an ambiguous line
// is counted as unmatched rather than guessed at.
var unsolicitedObservers = []observeFunc{
	observePower,
	observeVolume,
	observeMute,
	observeTextAfter("output.resolution", "resolution:"),
	observeAutoSwitch,
	observeWindowInput,
	observeMultiview,
}

// lookupCommand returns the table entry for name.
func lookupCommand(name string) (commandSpec, bool) {
	spec, ok := commandTable[name]
	return spec, ok
}

// CommandNames returns the sorted logical command names the core accepts.
func CommandNames() []string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// observeRaw caches the whole trimmed line under a fixed key. Used where the
// response format is opaque but still worth remembering, such as the device
// type banner.
func observeRaw(key string) observeFunc {
	return func(_ []int, line string) (string, string, bool) {
		line = strings.TrimSpace(line)
		if line == "" {
			return "", "", false
		}
		return key, line, true
	}
}

// observePower reads the power state from lines like "power on".
func observePower(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	switch {
	case strings.Contains(l, "power on"):
		return "power", "on", true
	case strings.Contains(l, "power off"):
		return "power", "off", true
	}
	return "", "", false
}

// observeVolume reads lines like "output audio volume: 50".
func observeVolume(_ []int, line string) (string, string, bool) {
	if v, ok := digitsAfter(normalize(line), "volume"); ok {
		return "audio.volume", v, true
	}
	return "", "", false
}

// observeMute reads mute state lines; the device prints both "mute: on" and
// the bare "mute on" form depending on firmware.
func observeMute(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	if !strings.Contains(l, "mute") {
		return "", "", false
	}
	switch {
	case strings.Contains(l, "unmute"), strings.Contains(l, "mute: off"), strings.Contains(l, "mute off"):
		return "audio.mute", "off", true
	case strings.Contains(l, "mute: on"), strings.Contains(l, "mute on"):
		return "audio.mute", "on", true
	}
	return "", "", false
}

// observeHDCP reads lines like "output hdcp 1.4" or "output hdcp off".
func observeHDCP(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	switch {
	case strings.Contains(l, "hdcp 1.4"):
		return "output.hdcp", "1.4", true
	case strings.Contains(l, "hdcp 2.2"):
		return "output.hdcp", "2.2", true
	case strings.Contains(l, "hdcp off"):
		return "output.hdcp", "off", true
	}
	return "", "", false
}

// observeVKA reads the video-keep-alive pattern (the screen shown when an
// input drops).
func observeVKA(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	if !strings.Contains(l, "vka") && !strings.Contains(l, "screen") {
		return "", "", false
	}
	switch {
	case strings.Contains(l, "black"):
		return "output.vka", "black", true
	case strings.Contains(l, "blue"):
		return "output.vka", "blue", true
	}
	return "", "", false
}

// observeITC reads the output content-type mode.
func observeITC(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	switch {
	case strings.Contains(l, "video mode"):
		return "output.itc", "video", true
	case strings.Contains(l, "pc mode"):
		return "output.itc", "pc", true
	}
	return "", "", false
}

// observeAudioSource reads lines like "output audio hdmi 2" or
// "output audio follow window".
func observeAudioSource(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	if !strings.Contains(l, "audio") {
		return "", "", false
	}
	if strings.Contains(l, "follow") {
		return "audio.source", "follow", true
	}
	if v, ok := digitsAfter(l, "hdmi"); ok {
		return "audio.source", v, true
	}
	return "", "", false
}

// observeAutoSwitch reads auto-switch state lines.
func observeAutoSwitch(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	if !strings.Contains(l, "auto switch") {
		return "", "", false
	}
	if strings.Contains(l, "off") {
		return "auto.switch", "off", true
	}
	if strings.Contains(l, "on") {
		return "auto.switch", "on", true
	}
	return "", "", false
}

// observeInput reads the selected HDMI input from lines like "hdmi 3".
func observeInput(key string) observeFunc {
	return func(_ []int, line string) (string, string, bool) {
		if v, ok := digitsAfter(normalize(line), "hdmi"); ok {
			return key, v, true
		}
		return "", "", false
	}
}

// observeMultiview reads the layout mode word.
func observeMultiview(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	for _, mode := range []string{"single", "pip", "pbp", "triple", "quad"} {
		if strings.Contains(l, mode) {
			return "multiview.mode", mode, true
		}
	}
	return "", "", false
}

// observeWindowInput reads window routing lines. The window index comes from
// the line itself when present ("window 2 in hdmi 3") and otherwise from the
// request parameters, so the same observer serves the set command, the
// single-window query, and each line of the all-windows query.
func observeWindowInput(params []int, line string) (string, string, bool) {
	l := normalize(line)
	input, ok := digitsAfter(l, "hdmi")
	if !ok {
		return "", "", false
	}
	window := 0
	if w, found := digitsAfter(l, "window"); found {
		window, _ = strconv.Atoi(w) //nolint:errcheck // digitsAfter yields digits only
	} else if len(params) > 0 {
		window = params[0]
	}
	if window < 1 || window > numWindows {
		return "", "", false
	}
	return "window." + strconv.Itoa(window) + ".input", input, true
}

// observePIPPosition maps position phrases to snake_case values.
func observePIPPosition(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	positions := []struct{ phrase, value string }{
		{"left top", "left_top"},
		{"left bottom", "left_bottom"},
		{"right top", "right_top"},
		{"right bottom", "right_bottom"},
	}
	for _, p := range positions {
		if strings.Contains(l, p.phrase) {
			return "pip.position", p.value, true
		}
	}
	return "", "", false
}

// observePIPSize reads the PIP window size word.
func observePIPSize(_ []int, line string) (string, string, bool) {
	l := normalize(line)
	if !strings.Contains(l, "pip") && !strings.Contains(l, "size") {
		return "", "", false
	}
	for _, s := range []string{"small", "middle", "large"} {
		if strings.Contains(l, s) {
			return "pip.size", s, true
		}
	}
	return "", "", false
}

// observeMode reads numbered layout variants like "pbp mode 2".
func observeMode(key string) observeFunc {
	return func(_ []int, line string) (string, string, bool) {
		if v, ok := digitsAfter(normalize(line), "mode"); ok {
			return key, v, true
		}
		return "", "", false
	}
}

// observeAspect reads aspect-ratio lines ("full screen" or "16:9").
func observeAspect(key string) observeFunc {
	return func(_ []int, line string) (string, string, bool) {
		l := normalize(line)
		switch {
		case strings.Contains(l, "16:9"):
			return key, "16:9", true
		case strings.Contains(l, "full"):
			return key, "full", true
		}
		return "", "", false
	}
}

// digitsAfter returns the first run of digits following marker in l.
func digitsAfter(l, marker string) (string, bool) {
	i := strings.Index(l, marker)
	if i < 0 {
		return "", false
	}
	rest := l[i+len(marker):]
	start := -1
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = j
			}
			continue
		}
		if start >= 0 {
			return rest[start:j], true
		}
	}
	if start >= 0 {
		return rest[start:], true
	}
	return "", false
}

// textAfter returns the trimmed remainder of l after the first marker.
func textAfter(l, marker string) (string, bool) {
	i := strings.Index(l, marker)
	if i < 0 {
		return "", false
	}
	v := strings.TrimSpace(l[i+len(marker):])
	if v == "" {
		return "", false
	}
	return v, true
}

// observeTextAfter caches whatever follows marker under key, e.g. the
// resolution string after "resolution:".
func observeTextAfter(key, marker string) observeFunc {
	return func(_ []int, line string) (string, string, bool) {
		if v, ok := textAfter(normalize(line), marker); ok {
			return key, v, true
		}
		return "", "", false
	}
}

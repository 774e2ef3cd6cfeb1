package htmlbridge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var boldWeights = map[string]bool{"bold": true, "700": true, "800": true, "900": true}

// highlightColors are the only background colours that survive sanitising.
var highlightColors = map[string]bool{
	"#ffff00": true, "#00ff00": true, "#ff00ff": true, "#ffa500": true,
	"yellow": true, "lime": true, "cyan": true, "magenta": true,
}

var namedColors = map[string]string{
	"yellow":  "#ffff00",
	"lime":    "#00ff00",
	"cyan":    "#00ffff",
	"magenta": "#ff00ff",
	"orange":  "#ffa500",
}

var rgbRe = regexp.MustCompile(`^rgba?\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*(?:,\s*[\d.]+\s*)?\)$`)

type declaration struct {
	prop  string
	value string
}

func parseDeclarations(style string) []declaration {
	var out []declaration
	for _, part := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
		value = strings.ToLower(strings.TrimSpace(value))
		if prop == "" || value == "" {
			continue
		}
		out = append(out, declaration{prop: prop, value: value})
	}
	return out
}

// FilterStyle keeps only the inline formatting the block model can carry:
// bold, italic, underline, line-through and a small set of highlight
// backgrounds. A light highlight forces black text so it stays readable in
// dark mode.
func FilterStyle(style string) string {
	var kept []string
	forceBlack := false
	for _, decl := range parseDeclarations(style) {
		switch decl.prop {
		case "font-weight":
			if boldWeights[decl.value] {
				kept = append(kept, "font-weight:"+decl.value)
			}
		case "font-style":
			if decl.value == "italic" {
				kept = append(kept, "font-style:italic")
			}
		case "text-decoration", "text-decoration-line":
			var lines []string
			if strings.Contains(decl.value, "underline") {
				lines = append(lines, "underline")
			}
			if strings.Contains(decl.value, "line-through") {
				lines = append(lines, "line-through")
			}
			if len(lines) > 0 {
				kept = append(kept, "text-decoration:"+strings.Join(lines, " "))
			}
		case "background-color", "background":
			color := normalizeColor(decl.value)
			if !highlightColors[color] {
				continue
			}
			kept = append(kept, "background-color:"+color)
			if isLight(color) {
				forceBlack = true
			}
		}
	}
	if forceBlack {
		kept = append(kept, "color:#000000")
	}
	return strings.Join(kept, "; ")
}

// normalizeColor lowercases names and hex values and converts rgb()/rgba()
// and short hex to #rrggbb.
func normalizeColor(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if m := rgbRe.FindStringSubmatch(value); m != nil {
		var rgb [3]int
		for i := range rgb {
			n, _ := strconv.Atoi(m[i+1])
			rgb[i] = min(n, 255)
		}
		return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
	}
	if len(value) == 4 && value[0] == '#' {
		return "#" + strings.Repeat(value[1:2], 2) + strings.Repeat(value[2:3], 2) + strings.Repeat(value[3:4], 2)
	}
	return value
}

// isLight uses the YIQ brightness formula; 128 and above is light.
func isLight(color string) bool {
	if hex, ok := namedColors[color]; ok {
		color = hex
	}
	if len(color) != 7 || color[0] != '#' {
		return false
	}
	r, errR := strconv.ParseUint(color[1:3], 16, 8)
	g, errG := strconv.ParseUint(color[3:5], 16, 8)
	b, errB := strconv.ParseUint(color[5:7], 16, 8)
	if errR != nil || errG != nil || errB != nil {
		return false
	}
	yiq := (r*299 + g*587 + b*114) / 1000
	return yiq >= 128
}

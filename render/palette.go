package render

import "strings"

// Palette provides the colors renderers draw with.
type Palette struct {
	NodeColors []string
	EdgeColor  string
	LabelColor string
	Background string
}

// DefaultPalette is a light scheme.
func DefaultPalette() *Palette {
	return &Palette{
		NodeColors: []string{
			"#4285F4", // blue
			"#EA4335", // red
			"#FBBC05", // yellow
			"#34A853", // green
			"#673AB7", // purple
			"#00BCD4", // cyan
		},
		EdgeColor:  "#999999",
		LabelColor: "#333333",
		Background: "#f8f8f8",
	}
}

// DarkPalette is for dark backgrounds.
func DarkPalette() *Palette {
	return &Palette{
		NodeColors: []string{
			"#FF6D00",
			"#2979FF",
			"#00E676",
			"#F50057",
			"#651FFF",
			"#00B0FF",
		},
		EdgeColor:  "#9E9E9E",
		LabelColor: "#EEEEEE",
		Background: "#212121",
	}
}

// PaletteFor returns the palette for a color scheme name.
func PaletteFor(scheme string) *Palette {
	if strings.EqualFold(scheme, "dark") {
		return DarkPalette()
	}
	return DefaultPalette()
}

// NodeColor picks a color by node index.
func (p *Palette) NodeColor(i int) string {
	if len(p.NodeColors) == 0 {
		return "#4285F4"
	}
	return p.NodeColors[i%len(p.NodeColors)]
}

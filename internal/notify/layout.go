package notify

import "encoding/json"

// PanelConfig is the dock layout understood by the host's panel plugin.
type PanelConfig struct {
	AnchorX         string     `json:"AnchorX"`
	AnchorY         string     `json:"AnchorY"`
	Autoload        bool       `json:"Autoload"`
	Available       bool       `json:"Available"`
	BackgroundColor string     `json:"BackgroundColor"`
	Dock            string     `json:"Dock"`
	FadeOut         float64    `json:"FadeOut"`
	Height          float64    `json:"Height"`
	Margin          string     `json:"Margin"`
	Order           int        `json:"Order"`
	Text            TextConfig `json:"Text"`
	Width           float64    `json:"Width"`
}

// TextConfig is the text element inside a PanelConfig.
type TextConfig struct {
	Align           string  `json:"Align"`
	AnchorX         string  `json:"AnchorX"`
	AnchorY         string  `json:"AnchorY"`
	Available       bool    `json:"Available"`
	BackgroundColor string  `json:"BackgroundColor"`
	Content         string  `json:"Content"`
	FadeIn          float64 `json:"FadeIn"`
	FadeOut         float64 `json:"FadeOut"`
	FontColor       string  `json:"FontColor"`
	FontSize        int     `json:"FontSize"`
	Height          float64 `json:"Height"`
	Margin          string  `json:"Margin"`
	Order           int     `json:"Order"`
	Width           float64 `json:"Width"`
}

// DefaultPanelConfig is the top-right dock panel.
func DefaultPanelConfig() PanelConfig {
	return PanelConfig{
		AnchorX:         "Right",
		AnchorY:         "Bottom",
		Autoload:        true,
		Available:       true,
		BackgroundColor: "0 0 0 0.4",
		Dock:            "TopRightDock",
		FadeOut:         0,
		Height:          0.95,
		Margin:          "0 0 0 0.005",
		Order:           7,
		Text: TextConfig{
			Align:           "MiddleCenter",
			AnchorX:         "Left",
			AnchorY:         "Bottom",
			Available:       true,
			BackgroundColor: "0 0 0 0.4",
			Content:         "No Content",
			FontColor:       "1 1 1 1",
			FontSize:        14,
			Height:          0.95,
			Margin:          "0 0 0 0.005",
			Order:           0,
			Width:           1.0,
		},
		Width: 1.0,
	}
}

// PanelLayout returns DefaultPanelConfig as JSON.
func PanelLayout() (string, error) {
	b, err := json.Marshal(DefaultPanelConfig())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

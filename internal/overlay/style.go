package overlay

import "factmap/internal/mapview"

const (
	StrokeOpacity = 0.8

	FillOpacity         = 0.35
	StrokeWeight        = 2.0
	HighlightFill       = 0.6
	HighlightStroke     = 3.0
	LabelColor          = "#000000"
	LabelFontSizePixels = 12.0
)

// StyleFor：区域图形样式；描边色与填充色均为区域颜色
func StyleFor(color string, highlighted bool) mapview.Style {
	st := mapview.Style{
		StrokeColor:   color,
		StrokeOpacity: StrokeOpacity,
		StrokeWeight:  StrokeWeight,
		FillColor:     color,
		FillOpacity:   FillOpacity,
	}
	if highlighted {
		st.StrokeWeight = HighlightStroke
		st.FillOpacity = HighlightFill
	}
	return st
}

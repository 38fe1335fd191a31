package api

import (
	"factmap/internal/engine"
	"factmap/internal/geo"
	"factmap/internal/viewport"
)

// 文档注释：请求与响应结构（对外）
// 约束：字段稳定；新增字段需评估前端兼容性。
type samplesRequest struct {
	Samples []geo.VisitedSample `json:"samples"`
}

type regionOut struct {
	Name   string               `json:"name,omitempty"`
	Value  string               `json:"value"`
	Color  string               `json:"color"`
	Label  string               `json:"label"`
	Shape  geo.ResolvedGeometry `json:"geometry"`
	Bounds *[2]geo.LatLng       `json:"bounds,omitempty"`
}

type failureOut struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type viewOut struct {
	Zoom   float64    `json:"zoom"`
	Center geo.LatLng `json:"center"`
	NE     geo.LatLng `json:"ne"`
	SW     geo.LatLng `json:"sw"`
}

type renderResult struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Drawn       []regionOut  `json:"drawn"`
	Failed      []failureOut `json:"failed"`
	View        *viewOut     `json:"view,omitempty"`
}

type errorOut struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func toRenderResult(f *geo.GeoFact, out engine.Outcome, st viewport.State) renderResult {
	res := renderResult{Title: f.Title, Description: f.Description, Drawn: []regionOut{}, Failed: []failureOut{}}
	for _, s := range out.Drawn {
		r := regionOut{
			Name:  s.Region.Name,
			Value: s.Region.Value.String(),
			Color: s.Region.Color,
			Label: s.Region.Label(),
			Shape: s.Geometry,
		}
		if s.Geometry.Kind == geo.KindBBox {
			r.Bounds = &[2]geo.LatLng{geo.SW(s.Geometry.Bounds), geo.NE(s.Geometry.Bounds)}
		}
		res.Drawn = append(res.Drawn, r)
	}
	for _, fl := range out.Failed {
		res.Failed = append(res.Failed, failureOut{Name: fl.Region.DisplayName(), Error: fl.Err.Error()})
	}
	if out.Fitted {
		res.View = &viewOut{Zoom: st.Zoom, Center: st.Center, NE: st.NE, SW: st.SW}
	}
	return res
}

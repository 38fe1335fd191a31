package geo

import "time"

// VisitedSample：一次到访记录，按时间戳排序、仅追加
type VisitedSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

func (s VisitedSample) LatLng() LatLng { return LatLng{Lat: s.Lat, Lng: s.Lng} }

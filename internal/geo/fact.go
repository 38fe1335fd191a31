package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// 坐标键量化精度（度），坐标相同判定的容差
const CoordEpsilon = 1e-6

// 文档注释：区域展示值
// 背景：事实生成方可能给出字符串或数值；统一保存为文本，数值按最短表示格式化。
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*v = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("region value must be string or number: %w", err)
	}
	*v = Value(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

func (v Value) String() string { return string(v) }

// 文档注释：区域（地图事实中的一个地名或坐标锚点）
// 约束：Name 与 Coordinates 至少其一；Coordinates 存在时不做地名解析。
type Region struct {
	Name        string  `json:"name,omitempty"`
	Value       Value   `json:"value"`
	Color       string  `json:"color,omitempty"`
	Coordinates *LatLng `json:"coordinates,omitempty"`
}

// 文档注释：区域身份键（缓存键）
// 约束：坐标优先，按 CoordEpsilon 量化；地名去首尾空白并小写化。
func (r Region) Key() string {
	if r.Coordinates != nil {
		lat := math.Round(r.Coordinates.Lat / CoordEpsilon)
		lng := math.Round(r.Coordinates.Lng / CoordEpsilon)
		return "coord:" + strconv.FormatInt(int64(lat), 10) + ":" + strconv.FormatInt(int64(lng), 10)
	}
	return "name:" + strings.ToLower(strings.TrimSpace(r.Name))
}

// Label：覆盖物文字；坐标区域只显示值
func (r Region) Label() string {
	if r.Coordinates != nil || r.Name == "" {
		return r.Value.String()
	}
	return r.Name + "\n" + r.Value.String()
}

// DisplayName：日志与导出用名称
func (r Region) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Coordinates != nil {
		return fmt.Sprintf("%.5f,%.5f", r.Coordinates.Lat, r.Coordinates.Lng)
	}
	return ""
}

// 文档注释：地图事实
// 背景：由外部事实生成服务给出；接收后不可变，一个引擎实例同一时刻只渲染一个事实。
type GeoFact struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Regions     []Region `json:"regions"`
}

var (
	ErrNoRegions      = errors.New("fact has no regions")
	ErrRegionNoAnchor = errors.New("region needs a name or coordinates")
)

// 文档注释：校验事实结构
// 约束：仅校验 regions 非空且每个区域具备地名或坐标；不做更深的模式约束。
func (f *GeoFact) Validate() error {
	if len(f.Regions) == 0 {
		return ErrNoRegions
	}
	for i, r := range f.Regions {
		if strings.TrimSpace(r.Name) == "" && r.Coordinates == nil {
			return fmt.Errorf("region %d: %w", i, ErrRegionNoAnchor)
		}
		if r.Coordinates != nil && !r.Coordinates.Valid() {
			return fmt.Errorf("region %d: invalid coordinates", i)
		}
	}
	return nil
}

// 文档注释：解码并校验地图事实
// 背景：缺失颜色的区域补一个伪随机十六进制颜色。
func DecodeFact(r io.Reader) (*GeoFact, error) {
	var f GeoFact
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fact: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	for i := range f.Regions {
		if !ValidColor(f.Regions[i].Color) {
			f.Regions[i].Color = RandomColor()
		}
	}
	return &f, nil
}

// RandomColor：伪随机 #rrggbb
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(0x1000000))
}

// ValidColor：#rgb 或 #rrggbb
func ValidColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	_, err := strconv.ParseUint(s[1:], 16, 32)
	return err == nil
}

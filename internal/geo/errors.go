package geo

import (
	"errors"
	"fmt"
)

// 错误分类：配置错误阻断整个组件；解析与网络错误按条目隔离；渲染错误仅跳过单个印章
var (
	ErrConfiguration = errors.New("configuration error")
	ErrResolution    = errors.New("resolution error")
	ErrNetwork       = errors.New("network error")
	ErrRender        = errors.New("render error")
)

// ConfigurationError：必需的地图凭据缺失
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Key)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// 文档注释：单个区域解析失败
// 背景：地理编码状态非 OK 或零结果；仅影响该区域，不中断其余区域。
type ResolutionError struct {
	Region string
	Status string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %s: %v", e.Region, e.Status, e.Err)
	}
	return fmt.Sprintf("resolve %q: %s", e.Region, e.Status)
}

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func (e *ResolutionError) Unwrap() error { return e.Err }

// NetworkError：历史轨迹等外部拉取失败
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

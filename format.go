package gapi

import "fmt"

// Format identifies the texel layout of a resource or a resource view.
type Format uint32

const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatRGBA8Uint
	FormatRGBA8Sint
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA16Uint
	FormatRGBA32Float
	FormatRGBA32Uint
	FormatR32Float
	FormatR32Uint
	FormatR16Float
	FormatR8Unorm
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8X24Uint
)

var formatMapping = map[Format]string{
	FormatUnknown:           "Unknown",
	FormatRGBA8Unorm:        "RGBA8Unorm",
	FormatRGBA8UnormSrgb:    "RGBA8UnormSrgb",
	FormatRGBA8Uint:         "RGBA8Uint",
	FormatRGBA8Sint:         "RGBA8Sint",
	FormatBGRA8Unorm:        "BGRA8Unorm",
	FormatRGBA16Float:       "RGBA16Float",
	FormatRGBA16Uint:        "RGBA16Uint",
	FormatRGBA32Float:       "RGBA32Float",
	FormatRGBA32Uint:        "RGBA32Uint",
	FormatR32Float:          "R32Float",
	FormatR32Uint:           "R32Uint",
	FormatR16Float:          "R16Float",
	FormatR8Unorm:           "R8Unorm",
	FormatD32Float:          "D32Float",
	FormatD24UnormS8Uint:    "D24UnormS8Uint",
	FormatD32FloatS8X24Uint: "D32FloatS8X24Uint",
}

func (f Format) String() string {
	str, ok := formatMapping[f]
	if !ok {
		return fmt.Sprintf("Format(%d)", uint32(f))
	}
	return str
}

// FormatInfo describes the per-texel byte layout of a Format.
type FormatInfo struct {
	BytesPerTexel uint32
	IsDepth       bool
	IsStencil     bool
}

var formatInfos = map[Format]FormatInfo{
	FormatRGBA8Unorm:        {BytesPerTexel: 4},
	FormatRGBA8UnormSrgb:    {BytesPerTexel: 4},
	FormatRGBA8Uint:         {BytesPerTexel: 4},
	FormatRGBA8Sint:         {BytesPerTexel: 4},
	FormatBGRA8Unorm:        {BytesPerTexel: 4},
	FormatRGBA16Float:       {BytesPerTexel: 8},
	FormatRGBA16Uint:        {BytesPerTexel: 8},
	FormatRGBA32Float:       {BytesPerTexel: 16},
	FormatRGBA32Uint:        {BytesPerTexel: 16},
	FormatR32Float:          {BytesPerTexel: 4},
	FormatR32Uint:           {BytesPerTexel: 4},
	FormatR16Float:          {BytesPerTexel: 2},
	FormatR8Unorm:           {BytesPerTexel: 1},
	FormatD32Float:          {BytesPerTexel: 4, IsDepth: true},
	FormatD24UnormS8Uint:    {BytesPerTexel: 4, IsDepth: true, IsStencil: true},
	FormatD32FloatS8X24Uint: {BytesPerTexel: 8, IsDepth: true, IsStencil: true},
}

// Info returns the byte-layout description for the format. It panics for
// FormatUnknown and unregistered formats, which have no defined layout.
func (f Format) Info() FormatInfo {
	info, ok := formatInfos[f]
	if !ok {
		panic(fmt.Sprintf("gapi: format %s has no layout information", f))
	}
	return info
}

// IsDepthStencil reports whether the format carries both a depth plane and a
// stencil plane. Views onto such resources must name an explicit plane format.
func (f Format) IsDepthStencil() bool {
	info, ok := formatInfos[f]
	return ok && info.IsDepth && info.IsStencil
}

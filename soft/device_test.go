package soft

import (
	"testing"

	"github.com/openframe/gapi"
	"github.com/stretchr/testify/require"
)

func TestCopyableFootprintsAlignment(t *testing.T) {
	dev := newDevice(nil)

	desc := gapi.NewTexture2DDescription(130, 130, gapi.FormatRGBA8Uint, 1, 3)
	footprints, size := dev.CopyableFootprints(desc, 0, 3, 0)
	require.Len(t, footprints, 3)

	for i, footprint := range footprints {
		require.Zero(t, footprint.Offset%gapi.TextureDataPlacementAlignment, "subresource %d offset", i)
		require.Zero(t, footprint.RowPitch%gapi.TextureDataPitchAlignment, "subresource %d pitch", i)
		require.GreaterOrEqual(t, footprint.RowPitch, footprint.RowSizeInBytes)
	}

	// 130 texels of RGBA8 are 520 bytes a row, pitched up to 768.
	require.Equal(t, uint64(520), footprints[0].RowSizeInBytes)
	require.Equal(t, uint64(768), footprints[0].RowPitch)
	require.Equal(t, uint32(130), footprints[0].NumRows)

	// Mip 1 is 65x65.
	require.Equal(t, uint32(65), footprints[1].Width)
	require.Equal(t, uint64(260), footprints[1].RowSizeInBytes)
	require.Equal(t, uint64(512), footprints[1].RowPitch)

	last := footprints[2]
	require.Equal(t, last.Offset+last.RowPitch*uint64(last.NumRows), size)
}

func TestCopyableFootprintsBaseOffset(t *testing.T) {
	dev := newDevice(nil)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Uint, 1, 2)
	relative, relativeSize := dev.CopyableFootprints(desc, 0, 2, 0)
	placed, placedSize := dev.CopyableFootprints(desc, 0, 2, 4096)

	require.Equal(t, relativeSize, placedSize)
	for i := range relative {
		require.Equal(t, relative[i].Offset+4096, placed[i].Offset)
	}
}

func TestOpsMoveBytesBetweenBuffers(t *testing.T) {
	dev := newDevice(nil)

	source, err := newResource(dev, gapi.NewBufferDescription(256), gapi.CpuAccessWrite, "src")
	require.NoError(t, err)
	dest, err := newResource(dev, gapi.NewBufferDescription(256), gapi.CpuAccessNone, "dst")
	require.NoError(t, err)

	for i := range source.slabs[0] {
		source.slabs[0][i] = byte(i)
	}

	(&opTransition{res: dest, before: gapi.ResourceStateCommon, after: gapi.ResourceStateCopyDest}).execute(dev)
	(&opCopyBufferRegion{dest: dest, destOffset: 16, source: source, sourceOffset: 64, numBytes: 32}).execute(dev)
	(&opTransition{res: dest, before: gapi.ResourceStateCopyDest, after: gapi.ResourceStateCommon}).execute(dev)

	for i := 0; i < 32; i++ {
		require.Equal(t, byte(64+i), dest.slabs[0][16+i])
	}
	require.Equal(t, byte(0), dest.slabs[0][0])
	require.Equal(t, byte(0), dest.slabs[0][48])
}

func TestCopyWithoutBarrierPanics(t *testing.T) {
	dev := newDevice(nil)

	source, err := newResource(dev, gapi.NewBufferDescription(64), gapi.CpuAccessNone, "src")
	require.NoError(t, err)
	dest, err := newResource(dev, gapi.NewBufferDescription(64), gapi.CpuAccessNone, "dst")
	require.NoError(t, err)

	// Neither side was transitioned.
	require.Panics(t, func() {
		(&opCopyResource{dest: dest, source: source}).execute(dev)
	})

	(&opTransition{res: source, before: gapi.ResourceStateCommon, after: gapi.ResourceStateCopySource}).execute(dev)
	require.Panics(t, func() {
		(&opCopyResource{dest: dest, source: source}).execute(dev)
	})

	(&opTransition{res: dest, before: gapi.ResourceStateCommon, after: gapi.ResourceStateCopyDest}).execute(dev)
	require.NotPanics(t, func() {
		(&opCopyResource{dest: dest, source: source}).execute(dev)
	})
}

func TestMismatchedTransitionPanics(t *testing.T) {
	dev := newDevice(nil)

	res, err := newResource(dev, gapi.NewBufferDescription(64), gapi.CpuAccessNone, "r")
	require.NoError(t, err)

	require.Panics(t, func() {
		(&opTransition{res: res, before: gapi.ResourceStateCopySource, after: gapi.ResourceStateCommon}).execute(dev)
	})
}

func TestPlacedCopyRespectsPitch(t *testing.T) {
	dev := newDevice(nil)

	desc := gapi.NewTexture2DDescription(4, 4, gapi.FormatRGBA8Uint, 1, 1)
	texture, err := newResource(dev, desc, gapi.CpuAccessNone, "tex")
	require.NoError(t, err)

	footprints, size := dev.CopyableFootprints(desc, 0, 1, 0)
	buffer, err := newResource(dev, gapi.NewBufferDescription(size), gapi.CpuAccessWrite, "staging")
	require.NoError(t, err)

	fp := footprints[0]
	for y := uint32(0); y < fp.NumRows; y++ {
		row := fp.Offset + uint64(y)*fp.RowPitch
		for b := uint64(0); b < fp.RowSizeInBytes; b++ {
			buffer.slabs[0][row+b] = byte(y + 1)
		}
	}

	(&opTransition{res: texture, before: gapi.ResourceStateCommon, after: gapi.ResourceStateCopyDest}).execute(dev)
	(&opCopyPlaced{texture: texture, textureIndex: 0, buffer: buffer, footprint: fp, toTexture: true}).execute(dev)

	slab := texture.slabs[0]
	for y := 0; y < 4; y++ {
		for b := 0; b < 16; b++ {
			require.Equal(t, byte(y+1), slab[y*16+b], "row %d byte %d", y, b)
		}
	}
}

func TestClearEncodesFormats(t *testing.T) {
	require.Equal(t, []byte{255, 128, 0, 255}, encodeTexel(gapi.FormatRGBA8Unorm, [4]float32{1.5, 0.5, -1, 1}))
	require.Equal(t, []byte{0, 128, 255, 255}, encodeTexel(gapi.FormatBGRA8Unorm, [4]float32{1.5, 0.5, -1, 1}))
	require.Equal(t, []byte{7, 8, 9, 10}, encodeTexel(gapi.FormatRGBA8Uint, [4]float32{7, 8, 9, 10}))
	require.Len(t, encodeTexel(gapi.FormatRGBA32Float, [4]float32{1, 2, 3, 4}), 16)
	require.Panics(t, func() {
		encodeTexel(gapi.FormatD32Float, [4]float32{})
	})
}

func TestDestroyReportsLeaks(t *testing.T) {
	dev := newDevice(nil)
	_, err := dev.CreateFence("leaked", 0)
	require.NoError(t, err)

	require.Error(t, dev.Destroy())
}

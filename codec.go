// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/woozymasta/lzss"
)

// compressFrameHeaderSize is the uncompressed-length prefix before the frame body.
const compressFrameHeaderSize = 4

// zstdFrameMagic identifies a zstd frame after the length prefix. Frames
// without it are legacy LZSS streams from old packer builds.
var zstdFrameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	// zstdEncoder is shared across all compressData calls; EncodeAll is stateless.
	zstdEncoder *zstd.Encoder
	// zstdDecoder is shared across all decompressData calls; DecodeAll is stateless.
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("rpfm: init zstd encoder: %v", err))
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("rpfm: init zstd decoder: %v", err))
	}
}

// compressData compresses data into a Pack compression frame:
// a 4-byte little-endian uncompressed length followed by a zstd frame.
// The input is never mutated.
func compressData(data []byte) []byte {
	out := make([]byte, compressFrameHeaderSize, compressFrameHeaderSize+len(data)/2+64)
	binary.LittleEndian.PutUint32(out, uint32(len(data))) //nolint:gosec // entry sizes are bounded by maxEntryDataSize

	return zstdEncoder.EncodeAll(data, out)
}

// decompressData decodes a Pack compression frame. Modern frames are zstd;
// frames without the zstd magic are decoded as legacy LZSS streams.
func decompressData(data []byte) ([]byte, error) {
	if len(data) < compressFrameHeaderSize {
		return nil, fmt.Errorf("%w: compression frame shorter than length prefix", ErrCorruptData)
	}

	expected := binary.LittleEndian.Uint32(data)
	if int64(expected) > maxArchiveData {
		return nil, fmt.Errorf("%w: declared uncompressed size %d", ErrCorruptData, expected)
	}

	body := data[compressFrameHeaderSize:]
	if bytes.HasPrefix(body, zstdFrameMagic) {
		return decompressZstdFrame(body, expected)
	}

	return decompressLegacyFrame(body, expected)
}

// decompressZstdFrame decodes one zstd frame body and validates the declared size.
func decompressZstdFrame(body []byte, expected uint32) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, expected))
	if err != nil {
		return nil, fmt.Errorf("%w: bad zstd frame: %v", ErrCorruptData, err)
	}

	if uint32(len(out)) != expected { //nolint:gosec // bounded by maxArchiveData check above
		return nil, fmt.Errorf("%w: frame declares %d bytes, decoded %d", ErrCorruptData, expected, len(out))
	}

	return out, nil
}

// decompressLegacyFrame decodes one legacy LZSS stream body.
func decompressLegacyFrame(body []byte, expected uint32) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(int(expected))

	if _, err := lzss.DecompressToWriter(&out, bytes.NewReader(body), int(expected), nil); err != nil {
		return nil, fmt.Errorf("%w: bad legacy frame: %v", ErrCorruptData, err)
	}

	if out.Len() != int(expected) {
		return nil, fmt.Errorf("%w: frame declares %d bytes, decoded %d", ErrCorruptData, expected, out.Len())
	}

	return out.Bytes(), nil
}

// Obfuscation key schedules, one per header revision. The transform is a
// position-dependent XOR, so applying it twice restores the input exactly.
var (
	keySchedulePFH0 = [32]byte{
		0x5a, 0x1e, 0x93, 0xc7, 0x08, 0x6d, 0xf2, 0x41,
		0xbe, 0x37, 0x84, 0xd9, 0x2a, 0xfc, 0x60, 0x15,
		0x9b, 0x4e, 0xe1, 0x73, 0x0c, 0xa8, 0x56, 0xdf,
		0x22, 0x90, 0x3d, 0xcb, 0x67, 0x1a, 0xf4, 0x8e,
	}
	keySchedulePFH2 = [32]byte{
		0xc3, 0x72, 0x0f, 0xa6, 0x58, 0xe9, 0x31, 0x9c,
		0x44, 0xd0, 0x7b, 0x16, 0xef, 0x85, 0x2e, 0xb9,
		0x63, 0xfa, 0x0a, 0x97, 0x4d, 0xc0, 0x38, 0xe5,
		0x51, 0x8c, 0x26, 0xdb, 0x70, 0x19, 0xae, 0xf7,
	}
	keySchedulePFH3 = [32]byte{
		0x17, 0x8a, 0xd3, 0x4c, 0xb0, 0x29, 0xe6, 0x75,
		0xfe, 0x42, 0x9d, 0x08, 0x61, 0xcf, 0x34, 0xab,
		0x50, 0xe8, 0x1b, 0xc6, 0x7f, 0x92, 0x2d, 0xf0,
		0x49, 0xb4, 0x0e, 0xd7, 0x6a, 0x23, 0x98, 0xe1,
	}
	keySchedulePFH4 = [32]byte{
		0x84, 0x3f, 0xca, 0x16, 0xed, 0x52, 0xb9, 0x07,
		0x6e, 0xd1, 0x28, 0x95, 0x4a, 0xf3, 0x80, 0x1d,
		0xc2, 0x39, 0xa4, 0x5f, 0xe0, 0x0b, 0x76, 0xc9,
		0x12, 0xbd, 0x48, 0xe7, 0x33, 0x8e, 0x05, 0xda,
	}
	keySchedulePFH5 = [32]byte{
		0x6b, 0xf0, 0x25, 0x9a, 0x47, 0xdc, 0x11, 0x8e,
		0x3c, 0xa1, 0x58, 0xe3, 0x0d, 0xb6, 0x79, 0xc4,
		0x1f, 0x8a, 0xd5, 0x40, 0xfb, 0x26, 0x91, 0x5c,
		0xe9, 0x04, 0xbf, 0x32, 0x87, 0xda, 0x4d, 0x70,
	}
)

// obfuscateData applies the reversible obfuscation transform for the given
// format version. It allocates a fresh buffer and never mutates the input.
func obfuscateData(data []byte, version FormatVersion) []byte {
	ft, ok := formatTable[version]
	if !ok {
		// Every caller validates the version before transforming bytes; a
		// wrong-key transform here would silently corrupt data.
		panic(fmt.Sprintf("rpfm: obfuscate: unknown format version %d", version))
	}

	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ ft.cipherKey[i%len(ft.cipherKey)] ^ byte(i)*ft.cipherMul
	}

	return out
}

// deobfuscateData removes the obfuscation transform. The transform is an
// involution, so this is the same operation as obfuscateData.
func deobfuscateData(data []byte, version FormatVersion) []byte {
	return obfuscateData(data, version)
}

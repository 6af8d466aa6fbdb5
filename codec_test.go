// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/woozymasta/lzss"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(rng.Intn(256))
	}

	return data
}

func TestObfuscateInvolution(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 4096)
	for _, version := range []FormatVersion{PFH0, PFH2, PFH3, PFH4, PFH5} {
		t.Run(version.String(), func(t *testing.T) {
			t.Parallel()

			scrambled := obfuscateData(data, version)
			if bytes.Equal(scrambled, data) {
				t.Fatal("obfuscation left data unchanged")
			}

			restored := deobfuscateData(scrambled, version)
			if !bytes.Equal(restored, data) {
				t.Fatal("double obfuscation did not restore input")
			}
		})
	}
}

func TestObfuscateInputNotMutated(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 256)
	saved := append([]byte(nil), data...)

	_ = obfuscateData(data, PFH5)
	if !bytes.Equal(data, saved) {
		t.Fatal("obfuscateData mutated its input")
	}
}

func TestObfuscateDiffersAcrossVersions(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 1024)
	a := obfuscateData(data, PFH0)
	b := obfuscateData(data, PFH5)
	if bytes.Equal(a, b) {
		t.Fatal("different versions produced identical ciphertext")
	}
}

func TestObfuscateUnknownVersionPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown format version")
		}
	}()

	obfuscateData([]byte("body"), FormatVersion(0xff))
}

func TestCompressRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "repetitive", data: bytes.Repeat([]byte("abcabcabc"), 700)},
		{name: "text", data: []byte("the quick brown fox jumps over the lazy dog")},
		{name: "random", data: randomBytes(t, 8192)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			frame := compressData(tc.data)
			if got := binary.LittleEndian.Uint32(frame); got != uint32(len(tc.data)) {
				t.Fatalf("length prefix = %d, want %d", got, len(tc.data))
			}

			out, err := decompressData(frame)
			if err != nil {
				t.Fatalf("decompressData: %v", err)
			}
			if !bytes.Equal(out, tc.data) {
				t.Fatal("round trip did not restore input")
			}
		})
	}
}

func TestDecompressLegacyFrame(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("legacy stream payload "), 300)
	body, err := lzss.Compress(data, lzss.DefaultCompressOptions())
	if err != nil {
		t.Fatalf("lzss.Compress: %v", err)
	}

	frame := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(frame, uint32(len(data)))
	frame = append(frame, body...)

	out, err := decompressData(frame)
	if err != nil {
		t.Fatalf("decompressData: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("legacy frame did not restore input")
	}
}

func TestDecompressCorruptFrames(t *testing.T) {
	t.Parallel()

	valid := compressData([]byte("payload payload payload"))

	short := []byte{0x01, 0x02}

	badBody := append([]byte(nil), valid[:4]...)
	badBody = append(badBody, zstdFrameMagic...)
	badBody = append(badBody, 0xde, 0xad, 0xbe, 0xef)

	wrongLength := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(wrongLength, binary.LittleEndian.Uint32(valid)+1)

	testCases := []struct {
		name  string
		frame []byte
	}{
		{name: "shorter than prefix", frame: short},
		{name: "bad zstd body", frame: badBody},
		{name: "declared length mismatch", frame: wrongLength},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := decompressData(tc.frame); !errors.Is(err, ErrCorruptData) {
				t.Fatalf("expected ErrCorruptData, got %v", err)
			}
		})
	}
}

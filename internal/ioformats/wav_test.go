package ioformats

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteWAVHeaderFields(t *testing.T) {
	var buf bytes.Buffer
	channels := [][]float64{{0, 0.5, -0.5}, {0, 0.25, -0.25}}
	if err := WriteWAV(&buf, channels, 48000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := buf.Bytes()
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %q", data[0:12])
	}
	if string(data[12:16]) != "fmt " {
		t.Fatalf("missing fmt chunk: %q", data[12:16])
	}
	audioFormat := binary.LittleEndian.Uint16(data[20:22])
	if audioFormat != 3 {
		t.Errorf("audioFormat = %d, want 3 (IEEE float)", audioFormat)
	}
	numChannels := binary.LittleEndian.Uint16(data[22:24])
	if numChannels != 2 {
		t.Errorf("numChannels = %d, want 2", numChannels)
	}
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate != 48000 {
		t.Errorf("sampleRate = %d, want 48000", sampleRate)
	}
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if bitsPerSample != 32 {
		t.Errorf("bitsPerSample = %d, want 32", bitsPerSample)
	}
	if string(data[36:40]) != "data" {
		t.Fatalf("missing data chunk: %q", data[36:40])
	}
}

func TestWriteWAVRejectsMismatchedChannelLengths(t *testing.T) {
	var buf bytes.Buffer
	err := WriteWAV(&buf, [][]float64{{0, 1}, {0}}, 48000)
	if err == nil {
		t.Fatal("expected error for mismatched channel lengths")
	}
}

func TestWriteWAVRejectsNoChannels(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, nil, 48000); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

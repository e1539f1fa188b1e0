package ioformats

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV encodes channel-interleaved IEEE-float32 PCM as a RIFF/WAVE file.
// No library in the dependency set encodes float samples (go-audio/wav's
// encoder only targets integer PCM), so this chunk layout is hand-rolled
// from the RIFF/WAVE specification directly.
func WriteWAV(w io.Writer, channels [][]float64, sampleRate int) error {
	if len(channels) == 0 {
		return fmt.Errorf("WriteWAV: no channels to write")
	}
	numChannels := len(channels)
	numFrames := len(channels[0])
	for _, c := range channels {
		if len(c) != numFrames {
			return fmt.Errorf("WriteWAV: channel length mismatch")
		}
	}

	bitsPerSample := 32
	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := numFrames * blockAlign
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	if err := writeChunkHeader(w, "RIFF", riffSize); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}

	if err := writeChunkHeader(w, "fmt ", 16); err != nil {
		return err
	}
	fmtFields := []uint16{3, uint16(numChannels)}
	for _, v := range fmtFields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(byteRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	if err := writeChunkHeader(w, "data", dataSize); err != nil {
		return err
	}
	for i := 0; i < numFrames; i++ {
		for _, c := range channels {
			if err := binary.Write(w, binary.LittleEndian, float32(c[i])); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeChunkHeader(w io.Writer, id string, size int) error {
	if _, err := w.Write([]byte(id)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(size))
}

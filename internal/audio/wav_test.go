package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container header %q", wav[:12])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d", got)
	}
}

func TestTonePCM16LELengthAndFade(t *testing.T) {
	pcm := TonePCM16LE(440, 100*time.Millisecond, 16000)
	if len(pcm) != 1600*2 {
		t.Fatalf("len = %d, want %d", len(pcm), 1600*2)
	}
	// First sample sits inside the fade-in, so it must be near silence.
	first := int16(binary.LittleEndian.Uint16(pcm[:2]))
	if first > 200 || first < -200 {
		t.Fatalf("first sample = %d, want faded", first)
	}
}

func TestTonePCM16LEZeroDuration(t *testing.T) {
	if pcm := TonePCM16LE(440, 0, 16000); pcm != nil {
		t.Fatalf("len = %d, want nil", len(pcm))
	}
}

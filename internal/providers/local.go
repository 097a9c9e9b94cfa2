package providers

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/motifd/internal/shared"
)

const (
	sampleRate     = 44100
	defaultSeconds = 6.0
)

// Local synthesizes a short sine-wave WAV directly from the input, with no
// network I/O. The tone is a deterministic function of the input name and the
// intensity parameter, so repeated renders of the same request produce the
// same audio.
type Local struct {
	name       string
	outDir     string
	maxSeconds int
	logger     *log.Logger
}

// NewLocal creates the zero-cost fallback provider.
func NewLocal(cfg shared.ProviderConfig, outDir string, logger *log.Logger) *Local {
	name := cfg.Name
	if name == "" {
		name = "local-synth"
	}
	return &Local{name: name, outDir: outDir, maxSeconds: cfg.MaxSeconds, logger: logger}
}

// Name implements [Provider].
func (l *Local) Name() string { return l.name }

// Render implements [Provider]. It never fails for availability reasons.
func (l *Local) Render(ctx context.Context, input string, params Params, progress ProgressFunc) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(progress, 10)

	seconds := defaultSeconds
	if l.maxSeconds > 0 && seconds > float64(l.maxSeconds) {
		seconds = float64(l.maxSeconds)
	}

	intensity := math.Max(0, math.Min(params.Intensity, 1))
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	freq := 440.0 + intensity*100.0 + float64(stemOffset(stem))

	data := sineWAV(seconds, freq)
	report(progress, 70)

	artifact, err := writeArtifact(l.outDir, input, "wav", l.name, seconds, data)
	if err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Debug("synthesized audio locally", "input", filepath.Base(input), "freq", fmt.Sprintf("%.1f", freq), "seconds", seconds)
	}
	report(progress, 95)
	return artifact, nil
}

// stemOffset derives a small stable frequency offset from the input stem so
// distinct inputs are audibly distinct.
func stemOffset(stem string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(stem))
	return h.Sum32() % 50
}

// sineWAV renders a faded-in 16-bit mono PCM sine tone as a complete WAV file.
// The fade avoids a transient pop and the 0.2 amplitude keeps playback quiet.
func sineWAV(seconds, freq float64) []byte {
	n := int(sampleRate * seconds)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		fade := float64(i) / float64(n)
		samples[i] = int16(0.2 * math.Sin(2*math.Pi*freq*t) * fade * 32767)
	}

	var buf bytes.Buffer
	dataLen := uint32(len(samples) * 2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))  // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// ABOUTME: Sine tone generator
// ABOUTME: Produces test and placeholder sounds without any asset files
package encode

import (
	"math"
	"time"

	"github.com/anomaly-engine/anomaly/pkg/audio"
)

// Tone generates a stereo sine wave. Amplitude is 0..1 of full scale.
func Tone(frequency float64, duration time.Duration, sampleRate int, amplitude float64) audio.Buffer {
	frames := int(duration.Seconds() * float64(sampleRate))
	samples := make([]int32, frames*2)

	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		value := int32(math.Sin(2*math.Pi*frequency*t) * amplitude * audio.Max24Bit)

		samples[i*2] = value
		samples[i*2+1] = value
	}

	return audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			SampleRate: sampleRate,
			Channels:   2,
			BitDepth:   24,
		},
	}
}

package feature

import (
	"math"

	"github.com/igolaizola/loopgen/pkg/wave"
)

// Krumhansl-Kessler key profiles.
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// estimateKey builds a pitch class histogram via Goertzel filters over
// C2..B5 and matches it against the major and minor profiles rotated
// through all twelve roots. The best correlation wins; on a tie the
// lowest root index wins, major before minor.
func estimateKey(w *wave.Waveform) *Key {
	chroma := chromaHistogram(w)
	var sum float64
	for _, v := range chroma {
		sum += v
	}
	if sum == 0 {
		return nil
	}

	best := Key{Root: -1}
	var bestScore float64
	for root := 0; root < 12; root++ {
		for _, mode := range []string{"major", "minor"} {
			profile := majorProfile
			if mode == "minor" {
				profile = minorProfile
			}
			score := correlate(chroma, profile, root)
			if score > bestScore {
				bestScore = score
				best = Key{Root: root, Mode: mode}
			}
		}
	}
	if best.Root < 0 {
		return nil
	}
	return &best
}

const (
	lowMIDI  = 36 // C2
	highMIDI = 83 // B5
)

func chromaHistogram(w *wave.Waveform) [12]float64 {
	var chroma [12]float64
	for midi := lowMIDI; midi <= highMIDI; midi++ {
		freq := 440.0 * math.Pow(2, float64(midi-69)/12.0)
		if freq >= float64(w.Rate)/2 {
			break
		}
		mag := goertzel(w.Samples, freq, w.Rate)
		chroma[midi%12] += mag
	}
	return chroma
}

// goertzel returns the magnitude of a single frequency component.
func goertzel(samples []float64, freq float64, rate int) float64 {
	if len(samples) == 0 {
		return 0
	}
	omega := 2 * math.Pi * freq / float64(rate)
	coeff := 2 * math.Cos(omega)
	var s0, s1, s2 float64
	for _, v := range samples {
		s0 = v + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	if power < 0 {
		power = 0
	}
	return math.Sqrt(power) / float64(len(samples))
}

// correlate computes the Pearson correlation between the chroma bins
// and the profile rotated so index 0 aligns with root.
func correlate(chroma [12]float64, profile []float64, root int) float64 {
	var meanA, meanB float64
	for i := 0; i < 12; i++ {
		meanA += chroma[(root+i)%12]
		meanB += profile[i]
	}
	meanA /= 12
	meanB /= 12

	var num, denA, denB float64
	for i := 0; i < 12; i++ {
		a := chroma[(root+i)%12] - meanA
		b := profile[i] - meanB
		num += a * b
		denA += a * a
		denB += b * b
	}
	den := math.Sqrt(denA * denB)
	if den == 0 {
		return 0
	}
	return num / den
}

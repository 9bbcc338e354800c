package terrain

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// NoiseParams controls how raw coherent noise becomes the [0,1] height and heat fields.
type NoiseParams struct {
	HeightFrequency float64 `yaml:"height_frequency"`
	HeatFrequencyX  float64 `yaml:"heat_frequency_x"`
	HeatFrequencyZ  float64 `yaml:"heat_frequency_z"`

	// Raw samples are mapped with clamp((v + Offset) * Scale, 0, 1).
	Offset      float64 `yaml:"offset"`
	HeightScale float64 `yaml:"height_scale"`
	HeatScale   float64 `yaml:"heat_scale"`

	// Perlin fractal parameters: Alpha is the amplitude falloff per octave,
	// Beta the frequency gain, Octaves the number of summed layers.
	Alpha   float64 `yaml:"alpha"`
	Beta    float64 `yaml:"beta"`
	Octaves int32   `yaml:"octaves"`
}

// DefaultNoiseParams returns the standard field parameters.
func DefaultNoiseParams() NoiseParams {
	return NoiseParams{
		HeightFrequency: 0.026,
		HeatFrequencyX:  0.0036,
		HeatFrequencyZ:  0.0016,
		Offset:          0.2,
		HeightScale:     2.25,
		HeatScale:       2.5,
		Alpha:           2,
		Beta:            2,
		Octaves:         3,
	}
}

// fields samples the height and heat noise for a seed. The two fields use
// independent generators so changing one frequency never perturbs the other.
type fields struct {
	params NoiseParams
	height *perlin.Perlin
	heat   *perlin.Perlin
}

func newFields(seed int64, p NoiseParams) *fields {
	return &fields{
		params: p,
		height: perlin.NewPerlin(p.Alpha, p.Beta, p.Octaves, seed),
		heat:   perlin.NewPerlin(p.Alpha, p.Beta, p.Octaves, seed^0x5DEECE66D),
	}
}

// sample returns the normalized height and heat at a centered tile coordinate.
func (f *fields) sample(x, z int) (height, heat float64) {
	p := f.params
	rawHeight := f.height.Noise2D(float64(x)*p.HeightFrequency, float64(z)*p.HeightFrequency)
	rawHeat := f.heat.Noise2D(float64(x)*p.HeatFrequencyX, float64(z)*p.HeatFrequencyZ)
	return normalize(rawHeight, p.Offset, p.HeightScale), normalize(rawHeat, p.Offset, p.HeatScale)
}

func normalize(v, offset, scale float64) float64 {
	v = (v + offset) * scale
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

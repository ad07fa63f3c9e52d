package core

import (
	"math"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// SlippageObservation is one realized fill used to calibrate the predictor:
// actualSlippageBps was observed when trading positionUsd against a book of
// depthUsd depth at spreadBps spread.
type SlippageObservation struct {
	PositionUsd      float64
	DepthUsd         float64
	SpreadBps        float64
	ActualSlippageBps float64
}

// minSlippageSamples is the minimum observation count CalibrateSlippageModel
// requires before it fits coefficients; below it, coefficients with only
// Symbol and SampleSize set are returned instead of an unstable fit, and
// BuildTWAPSchedule keeps its sqrt-law slippage estimate.
const minSlippageSamples = 10

// SlippageModel predicts fill slippage in basis points from a calibrated
// (alpha, beta, gamma) fit: alpha*sqrt(size/depth) + beta*spread + gamma.
type SlippageModel struct {
	coeffs domain.SlippageModelCoefficients
}

// NewSlippageModel wraps a previously calibrated (or persisted) coefficient
// set. A zero-value SlippageModelCoefficients predicts 0 for every input,
// which callers should treat as "uncalibrated" and fall back to
// CostCalculator.Slippage.
func NewSlippageModel(coeffs domain.SlippageModelCoefficients) *SlippageModel {
	return &SlippageModel{coeffs: coeffs}
}

// Predict returns the modeled slippage in basis points for a trade of
// positionUsd against a book of depthUsd depth at spreadBps spread.
func (m *SlippageModel) Predict(positionUsd, depthUsd, spreadBps float64) float64 {
	if depthUsd <= 0 {
		return 0
	}
	sizeRatio := math.Sqrt(positionUsd / depthUsd)
	return m.coeffs.Alpha*sizeRatio + m.coeffs.Beta*spreadBps + m.coeffs.Gamma
}

// Coefficients returns the model's current calibration.
func (m *SlippageModel) Coefficients() domain.SlippageModelCoefficients {
	return m.coeffs
}

// CalibrateSlippageModel fits (alpha, beta, gamma) to observations by
// ordinary least squares over the feature pair (sqrt(size/depth), spread)
// plus an intercept, the same linear-regression approach the teacher's
// pack uses for its own price-impact models. Returns the zero value when
// there are too few observations to calibrate reliably.
func CalibrateSlippageModel(symbol string, observations []SlippageObservation) domain.SlippageModelCoefficients {
	if len(observations) < minSlippageSamples {
		return domain.SlippageModelCoefficients{Symbol: symbol, SampleSize: len(observations)}
	}

	n := float64(len(observations))
	x := make([][2]float64, len(observations))
	y := make([]float64, len(observations))
	for i, o := range observations {
		if o.DepthUsd <= 0 {
			continue
		}
		x[i] = [2]float64{math.Sqrt(o.PositionUsd / o.DepthUsd), o.SpreadBps}
		y[i] = o.ActualSlippageBps
	}

	alpha, beta, gamma := solveOLS3(x, y)

	coeffs := domain.SlippageModelCoefficients{
		Symbol:         symbol,
		Alpha:          alpha,
		Beta:           beta,
		Gamma:          gamma,
		SampleSize:     len(observations),
		LastCalibrated: time.Now(),
	}
	coeffs.RSquared = rSquared(x, y, coeffs)
	_ = n
	return coeffs
}

// solveOLS3 fits y ~= a*x0 + b*x1 + c via the normal equations for a 3x3
// system, solved by Gaussian elimination with partial pivoting.
func solveOLS3(x [][2]float64, y []float64) (a, b, c float64) {
	var sxx, sxz, sx, szz, sz, n, sxy, szy, sy float64
	n = float64(len(x))
	for i := range x {
		x0, x1 := x[i][0], x[i][1]
		sxx += x0 * x0
		sxz += x0 * x1
		sx += x0
		szz += x1 * x1
		sz += x1
		sxy += x0 * y[i]
		szy += x1 * y[i]
		sy += y[i]
	}

	m := [3][4]float64{
		{sxx, sxz, sx, sxy},
		{sxz, szz, sz, szy},
		{sx, sz, n, sy},
	}

	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		m[col], m[pivot] = m[pivot], m[col]
		if math.Abs(m[col][col]) < 1e-12 {
			continue
		}
		for r := 0; r < 3; r++ {
			if r == col {
				continue
			}
			factor := m[r][col] / m[col][col]
			for k := col; k < 4; k++ {
				m[r][k] -= factor * m[col][k]
			}
		}
	}

	for row := 0; row < 3; row++ {
		if math.Abs(m[row][row]) < 1e-12 {
			continue
		}
		m[row][3] /= m[row][row]
	}

	return m[0][3], m[1][3], m[2][3]
}

func rSquared(x [][2]float64, y []float64, c domain.SlippageModelCoefficients) float64 {
	if len(y) == 0 {
		return 0
	}
	meanY := mean(y)
	var ssTot, ssRes float64
	for i, yi := range y {
		predicted := c.Alpha*x[i][0] + c.Beta*x[i][1] + c.Gamma
		ssRes += (yi - predicted) * (yi - predicted)
		ssTot += (yi - meanY) * (yi - meanY)
	}
	if ssTot <= 0 {
		return 0
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}

package optim

import "math"

// StaircaseDecay is the two-phase learning-rate schedule: base until
// startDecayStep, then multiplied by factor once every decaySteps steps.
//
//	lr(step) = base                                                  step < start
//	lr(step) = base * factor^floor((step - start) / decaySteps)      otherwise
func StaircaseDecay(base float32, step, startDecayStep, decaySteps int64, factor float32) float32 {
	if step < startDecayStep || decaySteps <= 0 {
		return base
	}
	exponent := (step - startDecayStep) / decaySteps
	return base * float32(math.Pow(float64(factor), float64(exponent)))
}

// SamplingProbability is the scheduled-sampling ramp: the chance of feeding
// the model's own previous prediction grows linearly from 0 at step 0 to 1
// at 2*startDecayStep and stays there.
func SamplingProbability(step, startDecayStep int64) float32 {
	horizon := 2 * startDecayStep
	if horizon <= 0 || step >= horizon {
		return 1
	}
	if step <= 0 {
		return 0
	}
	return float32(step) / float32(horizon)
}

package nn

import (
	"math"
)

// logSoftmaxAt returns log(softmax(logits)[target]) using the log-sum-exp
// trick, so large logits do not overflow.
func logSoftmaxAt(logits []float32, target int32) float64 {
	return float64(logits[target]) - logSumExp(logits)
}

func logSumExp(logits []float32) float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, float64(v))
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - maxLogit)
	}
	return maxLogit + math.Log(sum)
}

// softmaxGrad adds scale * (softmax(logits) - onehot(target)) to grad.
//
// This is ∂L/∂logits of the cross-entropy loss L = -log_softmax(logits)[target].
func softmaxGrad(grad, logits []float32, target int32, scale float64) {
	lse := logSumExp(logits)
	for k, v := range logits {
		p := math.Exp(float64(v) - lse)
		if int32(k) == target { //nolint:gosec // G115: k < vocabulary size < 2^31
			p -= 1
		}
		grad[k] += float32(scale * p)
	}
}

package postprocess

// Counts holds the confusion counts behind precision and recall.
type Counts struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Precision is tp/(tp+fp), or 0 when both are zero.
func (c Counts) Precision() float64 {
	if c.TruePositives+c.FalsePositives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
}

// Recall is tp/(tp+fn), or 0 when both are zero.
func (c Counts) Recall() float64 {
	if c.TruePositives+c.FalseNegatives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
}

// Score compares predicted rows (top beam) with target rows. Sentinels are
// removed from both sides first. Repeated predictions count once each.
func Score(predicted, targets [][]int32) Counts {
	var c Counts
	for i := range predicted {
		if i >= len(targets) {
			break
		}
		pred := FilterSentinels(predicted[i])
		target := FilterSentinels(targets[i])
		targetSet := toSet(target)
		predSet := toSet(pred)
		for _, id := range pred {
			if _, ok := targetSet[id]; ok {
				c.TruePositives++
			} else {
				c.FalsePositives++
			}
		}
		for _, id := range target {
			if _, ok := predSet[id]; !ok {
				c.FalseNegatives++
			}
		}
	}
	return c
}

func toSet(seq []int32) map[int32]struct{} {
	set := make(map[int32]struct{}, len(seq))
	for _, id := range seq {
		set[id] = struct{}{}
	}
	return set
}

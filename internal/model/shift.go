package model

// ShiftRecurrent turns a raw record batch of width max_len+1 into the
// recurrent model's view of width max_len:
//
//	encoder ids = raw_encoder[1:]   (the leading marker is dropped)
//	decoder ids = raw_decoder[:-1]
//	targets     = raw_decoder[1:]
//
// Lengths drop by one to match, never below 0. A row that held only the
// leading marker keeps no tokens and the loss masks it out.
func ShiftRecurrent(raw Batch) Batch {
	b := raw.BatchSize()
	out := Batch{
		Inputs: Inputs{
			EncoderIDs: make([][]int32, b),
			EncoderLen: make([]int32, b),
			SeedIDs:    append([]int32(nil), raw.SeedIDs...),
		},
		DecoderIDs:     make([][]int32, b),
		DecoderLen:     make([]int32, b),
		DecoderTargets: make([][]int32, b),
	}
	for i := 0; i < b; i++ {
		out.EncoderIDs[i] = append([]int32(nil), raw.EncoderIDs[i][1:]...)
		out.DecoderIDs[i] = append([]int32(nil), raw.DecoderIDs[i][:len(raw.DecoderIDs[i])-1]...)
		out.DecoderTargets[i] = append([]int32(nil), raw.DecoderIDs[i][1:]...)
		out.EncoderLen[i] = max(raw.EncoderLen[i]-1, 0)
		out.DecoderLen[i] = max(raw.DecoderLen[i]-1, 0)
	}
	return out
}

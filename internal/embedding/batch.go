package embedding

// Batch is a contiguous run of input texts sent in a single provider call.
type Batch struct {
	Index  int
	Offset int // position of Texts[0] in the full input
	Texts  []string
}

// Partition splits texts into consecutive batches of at most size items.
// A non-positive size puts everything into one batch.
func Partition(texts []string, size int) []Batch {
	if len(texts) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(texts)
	}

	batches := make([]Batch, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batches = append(batches, Batch{
			Index:  len(batches),
			Offset: start,
			Texts:  texts[start:end],
		})
	}
	return batches
}

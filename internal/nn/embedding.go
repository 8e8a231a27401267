package nn

import (
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Embedding is a lookup table mapping token IDs to dense vectors.
//
// The table is one owned Parameter; callers that need the same vectors in
// several places (playlist encoder, seed song) share the *Embedding.
type Embedding struct {
	numEmbeddings int
	embeddingDim  int
	weight        *Parameter // [num_embeddings, embedding_dim]
	backend       tensor.Backend
}

// NewEmbedding creates an embedding table initialized with init.
func NewEmbedding(name string, numEmbeddings, embeddingDim int, init Initializer, backend tensor.Backend) *Embedding {
	return &Embedding{
		numEmbeddings: numEmbeddings,
		embeddingDim:  embeddingDim,
		weight:        NewParameter(name, init(tensor.Shape{numEmbeddings, embeddingDim})),
		backend:       backend,
	}
}

// Forward looks up int32 ids of any shape and returns ids.Shape() + [embedding_dim].
func (e *Embedding) Forward(ids *tensor.RawTensor) *tensor.RawTensor {
	return e.backend.Gather(e.weight.Tensor(), ids)
}

// Weight returns the embedding table parameter.
func (e *Embedding) Weight() *Parameter {
	return e.weight
}

// Parameters returns the embedding table.
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.weight}
}

// NumEmbeddings returns the vocabulary size.
func (e *Embedding) NumEmbeddings() int {
	return e.numEmbeddings
}

// EmbeddingDim returns the vector width.
func (e *Embedding) EmbeddingDim() int {
	return e.embeddingDim
}

package embed

// cohereDims holds per-model default dimensions for the Cohere-style
// backend.
var cohereDims = map[string]int{
	"embed-english-v3.0":      1024,
	"embed-multilingual-v3.0": 1024,
}

// NewCohereEmbedder builds an embedder against a Cohere-compatible
// /embeddings endpoint. It shares the OpenAI-style request/response
// wire shape the spec describes for all non-local backends; only the
// base URL and default dimension table differ.
func NewCohereEmbedder(cfg OpenAIStyleConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "embed-english-v3.0"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = cohereDims[cfg.Model]
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 1024
		}
	}
	return NewOpenAIEmbedder(cfg)
}

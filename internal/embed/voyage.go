package embed

// voyageDims holds per-model default dimensions for the Voyage-style
// backend.
var voyageDims = map[string]int{
	"voyage-code-2":  1536,
	"voyage-code-3":  1024,
	"voyage-3":       1024,
	"voyage-3-lite":  512,
}

// NewVoyageEmbedder builds an embedder against a Voyage-compatible
// /embeddings endpoint. Same OpenAI-style wire shape; different base
// URL and dimension defaults.
func NewVoyageEmbedder(cfg OpenAIStyleConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.voyageai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "voyage-code-3"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = voyageDims[cfg.Model]
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 1024
		}
	}
	return NewOpenAIEmbedder(cfg)
}

package analyzer

import "fmt"

// Registry maps language tags to their Analyzer implementations.
type Registry struct {
	analyzers map[string]Analyzer
}

func NewRegistry() *Registry {
	return &Registry{analyzers: make(map[string]Analyzer)}
}

// Register adds an analyzer; the last registration for a language wins.
func (r *Registry) Register(a Analyzer) {
	r.analyzers[a.Language()] = a
}

// For returns the analyzer handling the given language.
func (r *Registry) For(language string) (Analyzer, error) {
	a, ok := r.analyzers[language]
	if !ok {
		return nil, fmt.Errorf("no analyzer registered for language %q", language)
	}
	return a, nil
}

// Languages lists the registered language tags.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.analyzers))
	for lang := range r.analyzers {
		out = append(out, lang)
	}
	return out
}

package spleis

import (
	"context"
	"encoding/json"
	"fmt"
)

// kjenning is one canned local test person, reachable by both identifiers.
type kjenning struct {
	fnr     string
	aktorID string
	person  map[string]any
}

// LokaleKjenninger is the Personer used in local mode. It answers lookups
// from a fixed set of test persons and never talks to the network.
type LokaleKjenninger struct {
	byID map[string]kjenning
}

var _ Personer = (*LokaleKjenninger)(nil)

// NewLokaleKjenninger returns the built-in local test persons.
func NewLokaleKjenninger() *LokaleKjenninger {
	kjenninger := []kjenning{
		{
			fnr:     "12020052345",
			aktorID: "42",
			person: map[string]any{
				"aktørId": "42",
				"fødselsnummer": "12020052345",
				"arbeidsgivere": []any{},
				"vedtaksperioder": []any{},
				"dødsdato": nil,
				"versjon": 1,
			},
		},
		{
			fnr:     "21030052379",
			aktorID: "1000000000042",
			person: map[string]any{
				"aktørId": "1000000000042",
				"fødselsnummer": "21030052379",
				"arbeidsgivere": []any{map[string]any{"organisasjonsnummer": "987654321", "generasjoner": []any{}}},
				"vedtaksperioder": []any{},
				"dødsdato": nil,
				"versjon": 1,
			},
		},
	}

	byID := make(map[string]kjenning, 2*len(kjenninger))
	for _, k := range kjenninger {
		byID[string(IDTypeFnr)+":"+k.fnr] = k
		byID[string(IDTypeAktorID)+":"+k.aktorID] = k
	}
	return &LokaleKjenninger{byID: byID}
}

func (l *LokaleKjenninger) Person(_ context.Context, id string, idType IDType, _ string) ([]byte, error) {
	k, ok := l.byID[string(idType)+":"+id]
	if !ok {
		return nil, ErrPersonNotFound
	}
	body, err := json.Marshal(k.person)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body, nil
}

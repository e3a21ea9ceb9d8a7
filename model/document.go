package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Kind tags the shape of a Document.
type Kind int

const (
	KindInvalid Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "invalid"
	}
}

// Document is an opaque JSON value. It is stored and returned verbatim;
// only its well-formedness is ever checked.
type Document json.RawMessage

var errMalformed = errors.New("malformed document")

func (d Document) Kind() Kind {
	raw := bytes.TrimSpace(d)
	if len(raw) == 0 || !json.Valid(raw) {
		return KindInvalid
	}
	switch raw[0] {
	case 'n':
		return KindNull
	case 't', 'f':
		return KindBool
	case '"':
		return KindString
	case '[':
		return KindSequence
	case '{':
		return KindMapping
	default:
		return KindNumber
	}
}

func (d Document) Valid() bool {
	return d.Kind() != KindInvalid
}

func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	if !d.Valid() {
		return nil, errMalformed
	}
	return d, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return errors.New("model.Document: UnmarshalJSON on nil pointer")
	}
	*d = append((*d)[0:0], data...)
	return nil
}

// EncodeDocuments serializes a document list into the single JSON text stored
// in the database.
func EncodeDocuments(docs []Document) (string, error) {
	if docs == nil {
		docs = []Document{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeDocuments(s string) ([]Document, error) {
	docs := []Document{}
	if s == "" {
		return docs, nil
	}
	if err := json.Unmarshal([]byte(s), &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

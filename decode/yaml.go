package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// yamlOperation is an Operation as written in a batch file. Bodies are
// written as yaml values and sent as their json encoding.
type yamlOperation struct {
	Method    string            `yaml:"method"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Body      interface{}       `yaml:"body"`
	ContentID string            `yaml:"content_id"`
}

type yamlItem struct {
	yamlOperation `yaml:",inline"`
	ChangeSet     []yamlOperation `yaml:"changeset"`
}

type yamlBatchFile struct {
	Items []yamlItem `yaml:"items"`
}

// DecodeYAMLBatchEnvelope parses and validates a batch file, a yaml
// document listing the envelope under an items key
func DecodeYAMLBatchEnvelope(body []byte) (BatchEnvelope, error) {
	var file yamlBatchFile

	decoder := yaml.NewDecoder(bytes.NewReader(body))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBatchEnvelope, err)
	}

	envelope := make(BatchEnvelope, 0, len(file.Items))
	for i, item := range file.Items {
		op, err := item.yamlOperation.operation()
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %s", ErrInvalidBatchEnvelope, i, err)
		}

		envelopeItem := EnvelopeItem{Operation: op}
		if item.ChangeSet != nil {
			envelopeItem.ChangeSet = make([]Operation, 0, len(item.ChangeSet))
			for j, member := range item.ChangeSet {
				op, err := member.operation()
				if err != nil {
					return nil, fmt.Errorf("%w: item %d changeset operation %d: %s", ErrInvalidBatchEnvelope, i, j, err)
				}
				envelopeItem.ChangeSet = append(envelopeItem.ChangeSet, op)
			}
		}

		envelope = append(envelope, envelopeItem)
	}

	if err := envelope.Validate(); err != nil {
		return nil, err
	}

	return envelope, nil
}

func (o yamlOperation) operation() (Operation, error) {
	op := Operation{
		Method:    o.Method,
		URL:       o.URL,
		Headers:   o.Headers,
		ContentID: o.ContentID,
	}

	if o.Body != nil {
		body, err := json.Marshal(o.Body)
		if err != nil {
			return Operation{}, err
		}
		op.Body = body
	}

	return op, nil
}

// Package models defines core data structures for examples, recognitions, and decisions.
package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// exampleNamespace scopes deterministic example IDs.
var exampleNamespace = uuid.MustParse("6f1d4b8e-2c3a-5e7f-9a0b-1c2d3e4f5a6b")

// Key identifies an example. Two examples with the same text and label are the same example.
type Key struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// ID returns a deterministic UUID (v5) for the key.
func (k Key) ID() string {
	return uuid.NewSHA1(exampleNamespace, []byte(k.Text+"\x00"+k.Label)).String()
}

func (k Key) String() string {
	return fmt.Sprintf("%q/%q", k.Text, k.Label)
}

// Example is a labeled utterance with its embedding. Immutable once stored.
type Example struct {
	Text   string    `json:"text"`
	Label  string    `json:"label"`
	Vector []float32 `json:"-"`
}

// Key returns the identity of the example.
func (e Example) Key() Key {
	return Key{Text: e.Text, Label: e.Label}
}

// ExampleInput is the input for adding an example.
type ExampleInput struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Validate trims the fields and checks that both are present.
func (in *ExampleInput) Validate() error {
	in.Text = strings.TrimSpace(in.Text)
	in.Label = strings.TrimSpace(in.Label)
	if in.Text == "" {
		return fmt.Errorf("%w: example text cannot be empty", ErrInvalidArgument)
	}
	if in.Label == "" {
		return fmt.Errorf("%w: example label cannot be empty", ErrInvalidArgument)
	}
	return nil
}

// Key returns the identity of the input.
func (in ExampleInput) Key() Key {
	return Key{Text: in.Text, Label: in.Label}
}

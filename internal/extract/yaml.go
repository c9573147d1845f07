package extract

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// seedFile is the YAML (or JSON) seed layout. Both sections may be used together:
//
//	examples:
//	  - {text: "Tell me today's weather", label: weather}
//	intents:
//	  - label: restaurant
//	    examples: ["Tell me good restaurant."]
type seedFile struct {
	Examples []models.ExampleInput `yaml:"examples"`
	Intents  []struct {
		Label    string   `yaml:"label"`
		Examples []string `yaml:"examples"`
	} `yaml:"intents"`
}

func extractYAML(content []byte) ([]models.ExampleInput, error) {
	var seed seedFile
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	out := append([]models.ExampleInput(nil), seed.Examples...)
	for _, intent := range seed.Intents {
		for _, text := range intent.Examples {
			out = append(out, models.ExampleInput{Text: text, Label: intent.Label})
		}
	}
	return out, nil
}

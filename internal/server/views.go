package server

import (
	"context"

	"github.com/hyperjump/shikibetsu/internal/config"
	"github.com/hyperjump/shikibetsu/internal/intent"
	"github.com/hyperjump/shikibetsu/internal/keyword"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/retriever"
	"github.com/hyperjump/shikibetsu/internal/storage"
	"go.uber.org/zap"
)

const defaultListLimit = 100

// ExampleView is an example as returned by the API.
type ExampleView struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Mode           string   `json:"mode"`
	Size           int      `json:"size"`
	Labels         []string `json:"labels"`
	NList          int      `json:"nlist"`
	IndexType      string   `json:"index_type"`
	DiskUsageBytes int64    `json:"disk_usage_bytes"`
	DatasetBytes   int64    `json:"dataset_bytes"`
	IndexBytes     int64    `json:"index_bytes"`
	DatasetPath    string   `json:"dataset_path,omitempty"`
	IndexPath      string   `json:"index_path,omitempty"`
	Dimensions     int      `json:"embedding_dimensions,omitempty"`
}

// ListQuery selects examples. An empty Query lists in insertion order;
// otherwise examples are looked up by keyword.
type ListQuery struct {
	Query string
	Label string
	Limit int
	Fuzzy bool
}

func viewOf(ex models.Example) ExampleView {
	return ExampleView{ID: ex.Key().ID(), Text: ex.Text, Label: ex.Label}
}

// ListExamples returns the examples selected by q.
func ListExamples(ctx context.Context, eng *retriever.Engine, q ListQuery) ([]ExampleView, error) {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	var examples []models.Example
	if q.Query != "" {
		found, err := eng.Find(ctx, q.Query, q.Limit, &keyword.SearchOptions{Label: q.Label, FuzzyEnabled: q.Fuzzy})
		if err != nil {
			return nil, err
		}
		examples = found
	} else {
		for _, ex := range eng.Examples() {
			if q.Label != "" && ex.Label != q.Label {
				continue
			}
			examples = append(examples, ex)
			if len(examples) == q.Limit {
				break
			}
		}
	}
	views := make([]ExampleView, len(examples))
	for i, ex := range examples {
		views[i] = viewOf(ex)
	}
	return views, nil
}

// BuildStatus summarizes the pipeline, its index, and the on-disk artifacts.
// eng and cfg may be nil.
func BuildStatus(p *intent.Pipeline, eng *retriever.Engine, cfg *config.Config, logger *zap.Logger) *StatusResponse {
	st := &StatusResponse{
		Mode:   string(p.Mode()),
		Size:   p.Size(),
		Labels: p.Labels(),
	}
	if eng != nil {
		st.NList = eng.NList()
		st.IndexType = eng.IndexType()
	}
	if cfg != nil {
		st.DatasetPath = cfg.Storage.DatasetPath
		st.IndexPath = cfg.Storage.IndexPath
		st.Dimensions = cfg.Embedding.Dimensions
		usage, err := storage.DiskUsage(st.DatasetPath, st.IndexPath)
		if err != nil && logger != nil {
			logger.Warn("status: disk usage failed", zap.Error(err))
		}
		st.DiskUsageBytes = usage.Total()
		st.DatasetBytes = usage.Dataset
		st.IndexBytes = usage.Index
	}
	if st.Labels == nil {
		st.Labels = []string{}
	}
	return st
}

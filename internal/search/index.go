// Package search maintains a full-text index over converted documents, so
// users can find which past conversion a piece of content came from.
package search

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
)

// document is the indexed representation of one converted markdown file.
type document struct {
	Job      string `json:"job"`
	Document string `json:"document"`
	Text     string `json:"text"`
}

// Hit is one search result.
type Hit struct {
	Job      string  `json:"job"`
	Document string  `json:"document"`
	Score    float64 `json:"score"`
	Fragment string  `json:"fragment,omitempty"`
}

// Index wraps a bleve index stored at a fixed path.
type Index struct {
	idx bleve.Index
}

// Open creates the index at path if it does not exist, or opens it.
func Open(path string) (*Index, error) {
	var idx bleve.Index
	var err error

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(path, mapping)
	} else {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}

	return &Index{idx: idx}, nil
}

// Add indexes one converted document. Re-adding the same job/document pair
// replaces the previous entry.
func (i *Index) Add(jobID, docName, markdown string) error {
	id := jobID + "/" + docName
	return i.idx.Index(id, document{
		Job:      jobID,
		Document: docName,
		Text:     markdown,
	})
}

// Remove deletes every indexed document belonging to a job.
func (i *Index) Remove(jobID string, docNames []string) {
	for _, name := range docNames {
		_ = i.idx.Delete(jobID + "/" + name)
	}
}

// Search runs a match query over the indexed text and returns up to limit
// hits with a highlighted fragment each.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	req.Fields = []string{"job", "document"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("text")

	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}

	var hits []Hit
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		if v, ok := h.Fields["job"].(string); ok {
			hit.Job = v
		}
		if v, ok := h.Fields["document"].(string); ok {
			hit.Document = v
		}
		if frags, ok := h.Fragments["text"]; ok && len(frags) > 0 {
			hit.Fragment = frags[0]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *Index) Close() error {
	return i.idx.Close()
}

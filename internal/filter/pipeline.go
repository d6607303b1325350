package filter

import (
	"fmt"

	"github.com/alexander-buerger-met-no/hidefix/internal/message"
)

// Pipeline decodes chunk bytes through a sequence of filters.
type Pipeline struct {
	filters []Filter
}

// NewPipeline builds a decode pipeline from a filter pipeline message.
// A nil or empty message yields an identity pipeline.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	if fp == nil || len(fp.Filters) == 0 {
		return &Pipeline{}, nil
	}

	p := &Pipeline{filters: make([]Filter, 0, len(fp.Filters))}
	for _, info := range fp.Filters {
		f, err := New(info)
		if err != nil {
			return nil, err
		}
		if f != nil {
			p.filters = append(p.filters, f)
		}
	}
	return p, nil
}

// Decode undoes the pipeline in reverse order. Bit i of filterMask set
// means filter i was skipped when the chunk was written and is skipped
// here as well.
func (p *Pipeline) Decode(input []byte, filterMask uint32) ([]byte, error) {
	data := input
	for i := len(p.filters) - 1; i >= 0; i-- {
		if filterMask&(1<<uint(i)) != 0 {
			continue
		}
		var err error
		if data, err = p.filters[i].Decode(data); err != nil {
			return nil, fmt.Errorf("filter %d: %w", p.filters[i].ID(), err)
		}
	}
	return data, nil
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool { return len(p.filters) == 0 }

// Len returns the number of active filters.
func (p *Pipeline) Len() int { return len(p.filters) }

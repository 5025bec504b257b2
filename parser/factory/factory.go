package factory

import (
	"fmt"

	"github.com/scipunch/backlog/fetcher/types"
	"github.com/scipunch/backlog/parser"
	"github.com/scipunch/backlog/parser/syndication"
	"github.com/scipunch/backlog/parser/youtube"
)

// Init creates a parser for every requested format. Unknown formats fail.
func Init(opts map[types.Format]parser.Options) (parser.Set, error) {
	parsers := make(parser.Set, len(opts))
	for format, o := range opts {
		var (
			p   parser.Parser
			err error
		)
		switch format {
		case types.Generic:
			p, err = syndication.New(o)
		case types.Structured:
			p, err = youtube.New(o)
		default:
			return nil, fmt.Errorf("unknown feed format: %s", format)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s parser with %w", format, err)
		}
		parsers[format] = p
	}
	return parsers, nil
}

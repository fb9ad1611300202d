package cbeta

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/olgasafonova/cbeta-mcp-server/internal/envelope"
	"github.com/olgasafonova/cbeta-mcp-server/internal/schema"
	"github.com/olgasafonova/cbeta-mcp-server/tools"
)

// minTitleQuery is the shortest title query, in characters, the service accepts.
const minTitleQuery = 3

var (
	fulltextSchema = schema.MustNew(
		schema.String("q").Require().Describe("Search phrase"),
		schema.String("fields").Describe("Comma-separated result fields, e.g. work,juan,term_hits"),
		schema.Integer("rows").WithDefault(20).Describe("Results per page"),
		schema.Integer("start").WithDefault(0).Describe("Offset of the first result"),
		schema.String("order").Describe("Sort order, e.g. time_from+ or time_from-"),
	)

	extendedSchema = schema.MustNew(
		schema.String("q").Require().Describe("Query; supports AND (&), OR (|), NOT (!) and NEAR"),
		schema.Integer("start").WithDefault(0).Describe("Offset of the first result"),
		schema.Integer("rows").WithDefault(20).Describe("Results per page"),
	)

	synonymSchema = schema.MustNew(
		schema.String("q").Require().Describe("Term to expand, e.g. 文殊師利"),
	)

	scSchema = schema.MustNew(
		schema.String("q").Require().Describe("Search phrase in simplified or traditional characters"),
		schema.String("fields").Describe("Comma-separated result fields"),
		schema.Integer("rows").WithDefault(10).Describe("Results per page"),
		schema.Integer("start").WithDefault(0).Describe("Offset of the first result"),
		schema.String("order").Describe("Sort order"),
	)

	facetSchema = schema.MustNew(
		schema.String("q").Require().Describe("Search phrase"),
		schema.String("f").Describe("Facet: canon, category, dynasty, creator or work; all when empty"),
	)

	allInOneSchema = schema.MustNew(
		schema.String("q").Require().Describe("Query; supports AND, OR, NOT and NEAR"),
		schema.Integer("note").WithDefault(1).Describe("1 includes interlinear notes, 0 excludes them"),
		schema.String("fields").Describe("Comma-separated result fields"),
		schema.Integer("facet").WithDefault(0).Describe("1 returns facets"),
		schema.Integer("rows").WithDefault(20).Describe("Results per page"),
		schema.Integer("start").WithDefault(0).Describe("Offset of the first result"),
		schema.Integer("around").WithDefault(10).Describe("KWIC context characters on each side"),
		schema.String("order").Describe("Sort order, e.g. time_from+"),
		schema.Integer("cache").WithDefault(1).Describe("1 lets the remote service use its cache"),
	)

	notesSchema = schema.MustNew(
		schema.String("q").Require().Describe("Term to find in notes, in double quotes"),
		schema.Integer("around").WithDefault(10).Describe("Highlight context characters"),
		schema.Integer("rows").WithDefault(20).Describe("Results per page"),
		schema.Integer("start").WithDefault(0).Describe("Offset of the first result"),
		schema.Integer("facet").WithDefault(0).Describe("1 returns facets"),
	)

	titleSchema = schema.MustNew(
		schema.String("q").Require().Describe("Title words, at least three characters"),
		schema.Integer("rows").WithDefault(20).Describe("Results per page"),
		schema.Integer("start").WithDefault(0).Describe("Offset of the first result"),
	)

	kwicSchema = schema.MustNew(
		schema.String("work").Require().Describe("Work ID, e.g. T0001"),
		schema.Integer("juan").Require().Describe("Fascicle number"),
		schema.String("q").Require().Describe("Search phrase"),
		schema.Integer("note").WithDefault(1).Describe("1 includes notes"),
		schema.Integer("mark").WithDefault(0).Describe("1 marks hits in the text"),
		schema.String("sort").WithDefault("f").Describe("f sorts by following text, b by preceding text, location by position"),
	)

	similarSchema = schema.MustNew(
		schema.String("q").Require().Describe("Passage without punctuation, ideally 6 to 50 characters"),
		schema.Integer("k").WithDefault(500).Describe("Top k fuzzy candidates"),
		schema.Integer("gain").WithDefault(2).Describe("Smith-Waterman match score"),
		schema.Integer("penalty").WithDefault(-1).Describe("Smith-Waterman mismatch score"),
		schema.Integer("score_min").WithDefault(16).Describe("Minimum alignment score"),
		schema.Integer("facet").WithDefault(0).Describe("1 returns facets"),
		schema.Integer("cache").WithDefault(1).Describe("1 lets the remote service use its cache"),
	)
)

func searchTools(c *Client) []tools.Descriptor {
	return []tools.Descriptor{
		remoteTool("cbeta_fulltext_search", "Full-Text Search",
			`Full-text search across the CBETA corpus.

Returns the raw search response including num_found and results.`,
			fulltextSchema, passThrough(c, "/search", fulltextTimeout)),

		remoteTool("extended_search", "Extended Search",
			`Boolean full-text search.

Combine terms with & (AND), | (OR), ! (NOT) or NEAR. Returns total and rows
of title, juan and content.`,
			extendedSchema, extendedSearch(c)),

		remoteTool("synonym_search", "Synonym Search",
			`List known synonyms of a term, useful to widen a later search.`,
			synonymSchema, passThrough(c, "/search/synonym", 0)),

		remoteTool("cbeta_search_sc", "Simplified Chinese Search",
			`Search with simplified or traditional characters; conversion happens remotely.

Returns only the query and its hit count.`,
			scSchema, searchSC(c)),

		remoteTool("cbeta_facet_query", "Facet Counts",
			`Count hits of a phrase grouped by canon, category, dynasty, creator or work.`,
			facetSchema, facetQuery(c)),

		remoteTool("cbeta_all_in_one", "All-in-One Search",
			`Search with KWIC excerpts, optional notes and facets in one call.`,
			allInOneSchema, passThrough(c, "/search/all_in_one", allInOneTimeout)),

		remoteTool("search_cbeta_notes", "Search Notes",
			`Search the collation notes and interlinear notes.`,
			notesSchema, passThrough(c, "/search/notes", 0)),

		remoteTool("search_title", "Search Titles",
			`Search work titles. The query needs at least three characters.`,
			titleSchema, searchTitle(c)),

		remoteTool("cbeta_kwic_search", "KWIC Search in One Fascicle",
			`Keyword-in-context search inside one fascicle (juan) of a work.`,
			kwicSchema, passThrough(c, "/search/kwic", kwicTimeout)),

		remoteTool("cbeta_similar_search", "Similar Passage Search",
			`Find passages similar to the given text using Smith-Waterman alignment.`,
			similarSchema, passThrough(c, "/search/similar", 0)),
	}
}

func extendedSearch(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		q := in.Query("start", "rows")
		// The service expects an already percent-encoded query; the query
		// string encoding is applied on top.
		q.Set("q", percentEncode(in.String("q")))

		data, err := c.Get(ctx, Request{Path: "/search/extended", Query: q, Timeout: fulltextTimeout})
		if err != nil {
			return nil, err
		}

		m := object(data)
		results := list(m["results"])
		rows := make([]map[string]any, 0, len(results))
		for _, r := range results {
			row := object(r)
			rows = append(rows, map[string]any{
				"title":   valueOr(row, "title", ""),
				"juan":    valueOr(row, "juan", ""),
				"content": valueOr(row, "content", ""),
			})
		}
		return map[string]any{
			"total": valueOr(m, "total", 0),
			"rows":  rows,
		}, nil
	}
}

func searchSC(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		data, err := c.Get(ctx, Request{Path: "/search/sc", Query: in.Query()})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"q":    in.String("q"),
			"hits": valueOr(object(data), "hits", 0),
		}, nil
	}
}

func facetQuery(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		path := "/search/facet"
		if f := in.String("f"); f != "" {
			path += "/" + url.PathEscape(f)
		}
		return c.Get(ctx, Request{Path: path, Query: in.Query("q")})
	}
}

func searchTitle(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		if utf8.RuneCountInString(strings.TrimSpace(in.String("q"))) < minTitleQuery {
			return envelope.Error("title query must be at least 3 characters"), nil
		}
		return c.Get(ctx, Request{Path: "/search/title", Query: in.Query()})
	}
}

// percentEncode escapes every byte outside the unreserved set, keeping "/".
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9',
			ch == '-', ch == '_', ch == '.', ch == '~', ch == '/':
			b.WriteByte(ch)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[ch>>4])
			b.WriteByte(hex[ch&0x0F])
		}
	}
	return b.String()
}

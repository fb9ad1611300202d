package cbeta

import (
	"context"
	"fmt"

	"github.com/olgasafonova/cbeta-mcp-server/internal/envelope"
	"github.com/olgasafonova/cbeta-mcp-server/internal/schema"
	"github.com/olgasafonova/cbeta-mcp-server/tools"
)

var (
	workSchema = schema.MustNew(
		schema.String("work").Require().Describe("Work ID, e.g. T1501"),
	)

	juanSchema = schema.MustNew(
		schema.String("work").Require().Describe("Work ID, e.g. T0001"),
		schema.Integer("juan").Require().Describe("Fascicle number, starting at 1"),
		schema.Integer("work_info").WithDefault(0).Describe("1 includes work metadata"),
		schema.Integer("toc").WithDefault(0).Describe("1 includes the table of contents"),
	)

	gotoSchema = schema.MustNew(
		schema.String("canon").Describe("Canon ID, e.g. T, X, N"),
		schema.String("work").Describe("Work number within the canon, e.g. 1, 150A"),
		schema.Integer("juan").Describe("Fascicle"),
		schema.Integer("vol").Describe("Volume"),
		schema.Integer("page").Describe("Page"),
		schema.String("col").Describe("Column: a, b or c"),
		schema.Integer("line").Describe("Line"),
		schema.String("linehead").Describe("Line reference, e.g. T01n0001_p0066c25; overrides all other fields"),
	)

	linesSchema = schema.MustNew(
		schema.String("linehead").Describe("Single line reference"),
		schema.String("linehead_start").Describe("First line of a range"),
		schema.String("linehead_end").Describe("Last line of a range"),
		schema.Integer("before").Describe("Extra lines before linehead"),
		schema.Integer("after").Describe("Extra lines after linehead"),
	)
)

// workInfoFields are copied from the first /works result.
var workInfoFields = []string{
	"work", "title", "byline", "creators", "category", "orig_category",
	"time_dynasty", "time_from", "time_to", "cjk_chars", "en_words",
	"file", "juan_start", "places",
}

var gotoFields = []string{"canon", "work", "juan", "vol", "page", "col", "line"}

func workTools(c *Client) []tools.Descriptor {
	return []tools.Descriptor{
		remoteTool("get_cbeta_work_info", "Get Work Information",
			`Get metadata of one work: title, byline, creators, category, dating,
character counts, source file and places.`,
			workSchema, workInfo(c)),

		remoteTool("get_cbeta_toc", "Get Work Table of Contents",
			`Get the table of contents of one work.`,
			workSchema, passThrough(c, "/toc", 0)),

		remoteTool("get_juan_html", "Get Fascicle HTML",
			`Get the HTML text of one fascicle (juan), optionally with work metadata and
table of contents.`,
			juanSchema, passThrough(c, "/juans", 0)),

		remoteTool("cbeta_goto", "Resolve Text Location",
			`Resolve a canon location or line reference to its CBETA Online URL.

Give linehead alone, or canon with work, juan, vol, page, col and line as
needed. Returns the final URL after redirects.`,
			gotoSchema, gotoLocation(c)),

		remoteTool("get_cbeta_lines", "Get Lines",
			`Get the text of one line with surrounding lines, or of a line range.`,
			linesSchema, passThrough(c, "/lines", 0)),
	}
}

func workInfo(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		work := in.String("work")
		data, err := c.Get(ctx, Request{Path: "/works", Query: in.Query("work")})
		if err != nil {
			return nil, err
		}

		m := object(data)
		results := list(m["results"])
		if number(m["num_found"]) == 0 || len(results) == 0 {
			return envelope.Error(fmt.Sprintf("no work found for %s", work)), nil
		}

		first := object(results[0])
		info := make(map[string]any, len(workInfoFields))
		for _, key := range workInfoFields {
			info[key] = first[key]
		}
		return info, nil
	}
}

func gotoLocation(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		q := in.Query(gotoFields...)
		if in.String("linehead") != "" {
			q = in.Query("linehead")
		}

		final, err := c.Resolve(ctx, Request{Path: "/juans/goto", Query: q})
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": final}, nil
	}
}

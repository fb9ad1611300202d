package cbeta

import (
	"context"
	"net/url"
	"strconv"

	"github.com/olgasafonova/cbeta-mcp-server/internal/envelope"
	"github.com/olgasafonova/cbeta-mcp-server/internal/schema"
	"github.com/olgasafonova/cbeta-mcp-server/tools"
)

var (
	catalogSchema = schema.MustNew(
		schema.String("q").Require().Describe("Catalog node, e.g. root, CBETA, orig-T, CBETA.001"),
	)

	textsSchema = schema.MustNew(
		schema.String("q").Require().Describe("Keyword or volume number, e.g. 阿含 or T01"),
	)

	canonVolSchema = schema.MustNew(
		schema.String("canon").Require().Describe("Canon ID, e.g. T or X"),
		schema.Integer("vol_start").Require().Describe("First volume"),
		schema.Integer("vol_end").Require().Describe("Last volume"),
	)

	translatorSchema = schema.MustNew(
		schema.String("creator_id").Describe("Author/translator ID, e.g. A000439"),
		schema.String("creator").Describe("Fuzzy match on author/translator name"),
		schema.String("creator_name").Describe("Name match restricted to creators without an ID"),
	)

	dynastySchema = schema.MustNew(
		schema.String("dynasty").Describe("Dynasty name, or several separated by commas"),
		schema.Integer("time_start").Describe("First year (CE)"),
		schema.Integer("time_end").Describe("Last year (CE)"),
	)
)

func catalogTools(c *Client) []tools.Descriptor {
	return []tools.Descriptor{
		remoteTool("get_cbeta_catalog", "Browse CBETA Catalog",
			`Browse the CBETA catalog tree.

Use q="root" for top-level nodes, "CBETA" for the CBETA divisions, "orig" for
the original canons, "orig-T" for the Taishō structure, or any returned node
id "n" (e.g. "CBETA.001") to expand it. Nodes with node_type "alt" are not
transcribed directly; follow the corresponding canon node.`,
			catalogSchema, passThrough(c, "/catalog_entry", 0)),

		remoteTool("search_cbeta_texts", "Search CBETA Table of Contents",
			`Search catalog, work titles and tables of contents by keyword or volume.

Results carry a type: catalog (division), work (title) or toc (section within
a work).`,
			textsSchema, passThrough(c, "/toc", 0)),

		remoteTool("search_buddhist_canons_by_vol", "Search Works by Volume Range",
			`List works of one canon between two volume numbers.

Returns num_found and results.`,
			canonVolSchema, searchByVolume(c)),

		remoteTool("search_works_by_translator", "Search Works by Translator",
			`Find works by author or translator.

Provide one of creator_id, creator or creator_name; when several are given the
first in that order is used.`,
			translatorSchema, searchByTranslator(c)),

		remoteTool("search_cbeta_by_dynasty", "Search Works by Dynasty",
			`Find works by dynasty name or by a range of years.

Provide dynasty, or both time_start and time_end. Returns num_found and the
first two results as sample_result.`,
			dynastySchema, searchByDynasty(c)),
	}
}

func searchByVolume(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		data, err := c.Get(ctx, Request{Path: "/works", Query: in.Query("canon", "vol_start", "vol_end")})
		if err != nil {
			return nil, err
		}
		m := object(data)
		return map[string]any{
			"num_found": m["num_found"],
			"results":   valueOr(m, "results", []any{}),
		}, nil
	}
}

func searchByTranslator(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		q := url.Values{}
		for _, key := range []string{"creator_id", "creator", "creator_name"} {
			if v := in.String(key); v != "" {
				q.Set(key, v)
				break
			}
		}
		if len(q) == 0 {
			return envelope.Error("provide at least one of creator_id, creator or creator_name"), nil
		}
		return c.Get(ctx, Request{Path: "/works", Query: q})
	}
}

func searchByDynasty(c *Client) tools.Handler {
	return func(ctx context.Context, in schema.Input) (any, error) {
		dynasty := in.String("dynasty")
		start, end := in.Int("time_start"), in.Int("time_end")
		if dynasty == "" && (start == 0 || end == 0) {
			return envelope.Error("provide dynasty, or both time_start and time_end"), nil
		}

		q := url.Values{}
		if dynasty != "" {
			q.Set("dynasty", dynasty)
		}
		if start != 0 {
			q.Set("time_start", strconv.FormatInt(start, 10))
		}
		if end != 0 {
			q.Set("time_end", strconv.FormatInt(end, 10))
		}

		data, err := c.Get(ctx, Request{Path: "/works", Query: q})
		if err != nil {
			return nil, err
		}
		m := object(data)
		results := list(m["results"])
		if len(results) > 2 {
			results = results[:2]
		}
		return map[string]any{
			"num_found":     valueOr(m, "num_found", 0),
			"sample_result": results,
		}, nil
	}
}

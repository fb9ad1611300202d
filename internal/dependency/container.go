// Package dependency wires the server's services using go.uber.org/dig.
package dependency

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/dig"

	"github.com/olgasafonova/cbeta-mcp-server/internal/cbeta"
	"github.com/olgasafonova/cbeta-mcp-server/internal/config"
	"github.com/olgasafonova/cbeta-mcp-server/tools"
)

const (
	// ServerName identifies the server to MCP clients and in telemetry
	ServerName = "cbeta-mcp-server"

	// ServerVersion is reported in the MCP handshake and by --version
	ServerVersion = "1.0.0"
)

const instructions = `CBETA MCP Server proxies the CBETA Online API for the Chinese Buddhist canon.

Every tool answers with {"status":"success","result":...} or
{"status":"error","message":...}.

Tool groups:
- catalog: get_cbeta_catalog, search_cbeta_texts, search_buddhist_canons_by_vol,
  search_works_by_translator, search_cbeta_by_dynasty
- search: cbeta_fulltext_search, extended_search, synonym_search, cbeta_search_sc,
  cbeta_facet_query, cbeta_all_in_one, search_cbeta_notes, search_title,
  cbeta_kwic_search, cbeta_similar_search
- work: get_cbeta_work_info, get_cbeta_toc, get_juan_html, cbeta_goto, get_cbeta_lines

Configure via environment variables:
- CBETA_API_URL: API base URL (default https://api.cbetaonline.cn)
- CBETA_TIMEOUT: default request timeout (default 10s)
- CBETA_TOOLS_ROOT / CBETA_MANIFEST: which tools are loaded`

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg        *config.Config
	client     *cbeta.Client
	dispatcher *tools.Dispatcher
	report     tools.LoadReport
	server     *mcp.Server
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config { return c.cfg }

// Client returns the CBETA Online client shared by every tool.
func (c *Container) Client() *cbeta.Client { return c.client }

// Dispatcher returns the dispatcher over the sealed registry.
func (c *Container) Dispatcher() *tools.Dispatcher { return c.dispatcher }

// Registry returns the sealed tool registry.
func (c *Container) Registry() *tools.Registry { return c.dispatcher.Registry() }

// LoadReport returns the outcome of the startup load.
func (c *Container) LoadReport() tools.LoadReport { return c.report }

// MCPServer returns the MCP server with every tool registered.
func (c *Container) MCPServer() *mcp.Server { return c.server }

// New builds and wires all services from cfg. The registry is loaded once,
// here, before anything can dispatch.
func New(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() *slog.Logger { return logger }); err != nil {
		return nil, err
	}
	if err := d.Provide(newClient); err != nil {
		return nil, err
	}
	if err := d.Provide(cbeta.Units); err != nil {
		return nil, err
	}
	if err := d.Provide(loadRegistry); err != nil {
		return nil, err
	}
	if err := d.Provide(newDispatcher); err != nil {
		return nil, err
	}
	if err := d.Provide(newMCPServer); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		client *cbeta.Client,
		dispatcher *tools.Dispatcher,
		report tools.LoadReport,
		server *mcp.Server,
	) {
		result = &Container{
			cfg:        cfg,
			client:     client,
			dispatcher: dispatcher,
			report:     report,
			server:     server,
		}
	})
	return result, err
}

func newClient(cfg *config.Config, logger *slog.Logger) *cbeta.Client {
	return cbeta.NewClient(cfg.APIURL,
		cbeta.WithLogger(logger),
		cbeta.WithUserAgent(cfg.UserAgent),
		cbeta.WithTimeout(cfg.Timeout),
	)
}

func loadRegistry(cfg *config.Config, logger *slog.Logger, units []tools.Unit) (*tools.Registry, tools.LoadReport) {
	reg := tools.NewRegistry(logger)
	report := tools.NewLoader(logger).Load(reg, units, tools.Selection{
		Root:    cfg.ToolsRoot,
		Exclude: cfg.Manifest.Exclude,
		Disable: cfg.Manifest.Disable,
	})
	return reg, report
}

func newDispatcher(reg *tools.Registry, logger *slog.Logger) *tools.Dispatcher {
	return tools.NewDispatcher(reg, logger)
}

func newMCPServer(dispatcher *tools.Dispatcher, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger:       logger,
		Instructions: instructions,
	})
	tools.RegisterMCP(server, dispatcher, logger)
	return server
}

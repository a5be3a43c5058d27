// Package tools groups the tool layer used by the agent.
//
// Sub-packages:
//   - [github.com/germanamz/tabletalk/pkg/tools/toolbox]: Tool type, declared argument schemas and the ToolBox registry
//   - [github.com/germanamz/tabletalk/pkg/tools/sqltools]: run_query, describe_tables and list_tables over a SQL database
//   - [github.com/germanamz/tabletalk/pkg/tools/report]: write_report, which saves HTML reports to disk
//   - [github.com/germanamz/tabletalk/pkg/tools/mcpclient]: imports tools from external MCP servers
//   - [github.com/germanamz/tabletalk/pkg/tools/mcpserver]: exposes a ToolBox over MCP
//
// toolbox is the foundation layer; every other sub-package builds on it and
// none depend on each other, except that mcpclient tests drive mcpserver.
package tools

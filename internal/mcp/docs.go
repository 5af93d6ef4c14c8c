package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `hubwatch is a client for the order service: it holds one login session,
polls API health and sales totals while logged in, and submits demo orders.

Workflow:
1) login(username, password). The session starts polling immediately.
2) get_status for health (ONLINE / DOWN / Unknown) and totals from the last sync.
3) submit_order(customer_name). A name containing ERROR is predicted FAILED.
   A follow-up sync runs about a second after each accepted order.
4) list_orders for this session's submissions, newest first.
5) logout ends the session locally; the server is not contacted.

If the server rejects the token the session ends by itself and get_status
reports reason "expired". Log in again to resume.
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "hubwatch://docs/predictions",
		Name:        "predictions",
		Title:       "Order outcome predictions",
		Description: "How submitted orders are labelled QUEUED or FAILED.",
		Content: `# Predicted outcomes

Every accepted order is labelled locally when it is submitted:

- FAILED when the customer name contains the exact, case-sensitive substring ERROR.
- QUEUED otherwise.

The label is a prediction of how the asynchronous worker will treat the
order. It is never reconciled with the worker's actual result, and the
server status recorded on the order is the one returned at creation time
(normally PENDING).
`,
	},
	{
		URI:         "hubwatch://docs/sync",
		Name:        "sync",
		Title:       "Sync loop",
		Description: "When health and totals are refreshed.",
		Content: `# Sync loop

While logged in, one pass runs at login and then at a fixed interval
(5s by default). Each pass fetches /health and /analytics/dashboard
concurrently; either may fail without affecting the other, and a failed
fetch keeps the previous value. A tick is skipped while the previous pass
is still running. Submitting an order schedules one extra pass.

Logout or token expiry stops the loop and clears health, totals and the
order list.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
